// Package core keeps local, durable mirrors of CSV datasets that live in a
// remote dataset store, and routes every change through that store.
//
// It holds all domain logic independent of any transport. The HTTP API
// (internal/web) and the tablesctl CLI (internal/cli) are thin wrappers
// around [Service].
//
// # Sessions
//
// A [Session] is one open table. The [Registry] tracks sessions, which one
// is active, and which are archived. Sessions are fully isolated: each has
// its own mirror, editing cursor and endpoint, and an operation always names
// the session it targets.
//
// # Mirrors
//
// A [Mirror] is a session's copy of a [Dataset] plus a stable [RowKey] per
// row. [MirrorStore] keeps the current mirror of each session in memory and
// writes it through to a [storage.Store] whenever the remote store confirms a
// change, so a restart resumes from the last confirmed state. Optimistic
// changes are applied in memory only.
//
// # Mutations
//
// [Pipeline] runs cell edits, row inserts and row deletes against the
// remote store:
//
//   - Edits open a single [EditingCursor], show the new value right away and
//     replace the mirror's rows with the store's canonical rows on success.
//     On failure the cell is reverted unless [EditPolicy] says otherwise.
//   - Inserts change nothing locally until the store answers.
//   - Deletes remove the row locally at once and send its position at issue
//     time. The store's answer carries no rows.
//
// Every call resolves the dataset's public API URL first through the
// [Resolver], which provisions it once and falls back to a derived URL when
// provisioning fails.
//
// # Views
//
// [Page] projects a mirror into a sorted, paginated [PageResult] without
// changing it. Rows keep their mirror index so edits issued from a sorted
// page address the right row.
//
// # Error Handling
//
// Failures are classified as [NetworkError], [RemoteRejection] or
// [ValidationError] and mapped to user messages with [MapError]:
//
//   - NET001: the store could not be reached
//   - REM001-REM002: the store rejected the request
//   - VAL001: bad input caught before any request
//   - SES001-SES004: session state errors
//   - STO001: the local copy could not be saved
package core
