package core

// error_messages.go maps engine errors to user-facing notifications.
//
// Every failure that crosses the pipeline or resolver boundary ends up as a
// transient Notification. The code lets a user quote the failure to support.
//
//	NET001 - Network failure: the dataset store could not be reached
//	REM001 - Rejected: the dataset store refused the change (carries its detail)
//	REM002 - Not found: the dataset or endpoint no longer exists remotely
//	VAL001 - Invalid input: caught before any request was sent
//	SES001 - Session not found
//	SES002 - No dataset: the session has nothing uploaded yet
//	SES003 - No open edit: commit without a cell being edited
//	SES004 - Archived: the session must be restored first
//	STO001 - Storage: the local copy could not be saved
//	UPL001 - Request cancelled
//	UPL002 - Request timed out
//	ERR000 - Anything else

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage represents a user-friendly error message with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support if the problem persists",
	Code:    "ERR000",
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrSessionNotFound, UserMessage{"Table not found", "Open or create a table first", "SES001"}},
	{ErrNoDataset, UserMessage{"This table has no data yet", "Upload a CSV file to get started", "SES002"}},
	{ErrNoOpenEdit, UserMessage{"No cell is being edited", "Select a cell before saving", "SES003"}},
	{ErrSessionArchived, UserMessage{"This table is archived", "Restore the table to work with it", "SES004"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "UPL001"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Check your connection and try again", "UPL002"}},
}

// fallback patterns for errors that arrive untyped (e.g. from storage drivers)
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"connection refused", UserMessage{"Unable to reach the data service", "Please try again in a few moments", "NET001"}},
	{"database is locked", UserMessage{"Local data could not be saved", "Close other instances and try again", "STO001"}},
	{"save sessions", UserMessage{"Local data could not be saved", "Check disk space and try again", "STO001"}},
	{"save mirror", UserMessage{"Local data could not be saved", "Your change may have reached the server; reload the table", "STO001"}},
}

// MapError converts an error into a user-friendly message.
// Typed errors are matched first, then known message patterns.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return UserMessage{
			Message: "Invalid input: " + ve.Reason,
			Action:  "Correct the highlighted value and try again",
			Code:    "VAL001",
		}
	}

	var re *RemoteRejection
	if errors.As(err, &re) {
		if re.Status == http.StatusNotFound {
			return UserMessage{
				Message: "The dataset no longer exists on the server",
				Action:  "Upload the file again",
				Code:    "REM002",
			}
		}
		msg := "The server rejected the change"
		if re.Detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, re.Detail)
		}
		return UserMessage{Message: msg, Action: "Review the value and try again", Code: "REM001"}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	if IsNetwork(err) {
		return UserMessage{
			Message: "Unable to reach the data service",
			Action:  "Check your connection and try again",
			Code:    "NET001",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// NotificationLevel grades a notification for display.
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// Notification is the transient toast shown after an operation.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
}

// Success builds a success notification.
func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message}
}

// Failure builds an error notification from err.
func Failure(err error) Notification {
	msg := MapError(err)
	return Notification{Level: LevelError, Message: msg.Message, Code: msg.Code}
}
