package core

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/JonMunkholm/tablesync/internal/logging"
	"golang.org/x/sync/singleflight"
)

// FallbackEndpoint is the URL used when provisioning fails. It depends only on
// the dataset id and implies nothing about remote state.
func FallbackEndpoint(base, datasetID string) string {
	return strings.TrimRight(base, "/") + "/api/data/" + url.PathEscape(datasetID)
}

// Resolver maps dataset ids to their public API URL.
//
// A resolution, provisioned or fallback, is cached for the life of the
// resolver, except a fallback caused by an interrupted call. Seed lets
// callers restore persisted resolutions so a restart does not provision a
// second URL for the same dataset.
type Resolver struct {
	provisioner  Provisioner
	remoteBase   string
	fallbackBase string

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

type resolution struct {
	url         string
	provisioned bool
}

// NewResolver creates a resolver. Relative URLs from the provisioner are
// joined onto remoteBase; fallbacks are built on fallbackBase.
func NewResolver(p Provisioner, remoteBase, fallbackBase string) *Resolver {
	if fallbackBase == "" {
		fallbackBase = remoteBase
	}
	return &Resolver{
		provisioner:  p,
		remoteBase:   remoteBase,
		fallbackBase: fallbackBase,
		cache:        make(map[string]string),
	}
}

// Resolve returns the endpoint for datasetID. It never fails: provisioning
// errors are logged and replaced by FallbackEndpoint.
func (r *Resolver) Resolve(ctx context.Context, datasetID string) string {
	u, _ := r.resolve(ctx, datasetID)
	return u
}

// resolve also reports whether the URL came from a successful provisioning
// call made by this resolution.
func (r *Resolver) resolve(ctx context.Context, datasetID string) (string, bool) {
	if u, ok := r.Cached(datasetID); ok {
		return u, false
	}

	v, _, _ := r.group.Do(datasetID, func() (any, error) {
		if u, ok := r.Cached(datasetID); ok {
			return resolution{url: u}, nil
		}

		// Collapsed callers share this call, so one caller going away must
		// not cut it short.
		res := resolution{provisioned: true}
		u, err := r.provisioner.GenerateAPIURL(context.WithoutCancel(ctx), datasetID)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			logging.FromContext(ctx).Warn("endpoint provisioning interrupted, using fallback",
				"dataset_id", datasetID, "error", err)
			return resolution{url: FallbackEndpoint(r.fallbackBase, datasetID)}, nil
		case err != nil:
			logging.FromContext(ctx).Warn("endpoint provisioning failed, using fallback",
				"dataset_id", datasetID, "error", err)
			res = resolution{url: FallbackEndpoint(r.fallbackBase, datasetID)}
		case strings.TrimSpace(u) == "":
			logging.FromContext(ctx).Warn("endpoint provisioning returned no url, using fallback",
				"dataset_id", datasetID)
			res = resolution{url: FallbackEndpoint(r.fallbackBase, datasetID)}
		default:
			res.url = r.absolute(u)
			logging.FromContext(ctx).Debug("endpoint provisioned",
				"dataset_id", datasetID, "url", res.url)
		}

		r.Seed(datasetID, res.url)
		return res, nil
	})

	res := v.(resolution)
	return res.url, res.provisioned
}

func (r *Resolver) absolute(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return strings.TrimRight(u, "/")
	}
	base, err := url.Parse(r.remoteBase)
	if err != nil {
		return strings.TrimRight(r.remoteBase, "/") + "/" + strings.TrimLeft(u, "/")
	}
	ref, err := url.Parse(u)
	if err != nil {
		return strings.TrimRight(r.remoteBase, "/") + "/" + strings.TrimLeft(u, "/")
	}
	return strings.TrimRight(base.ResolveReference(ref).String(), "/")
}

// Cached returns the cached endpoint without provisioning.
func (r *Resolver) Cached(datasetID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.cache[datasetID]
	return u, ok
}

// Seed stores a known endpoint. Empty urls are ignored.
func (r *Resolver) Seed(datasetID, endpoint string) {
	if endpoint == "" {
		return
	}
	r.mu.Lock()
	r.cache[datasetID] = endpoint
	r.mu.Unlock()
}

// Forget drops the cached endpoint so the next Resolve provisions again.
func (r *Resolver) Forget(datasetID string) {
	r.mu.Lock()
	delete(r.cache, datasetID)
	r.mu.Unlock()
}
