// Package blob stores uploaded documents and fetches them back by location.
//
// A location is a URL-like reference persisted with each knowledge entry:
// file://<key> for the local upload directory, minio://<bucket>/<key> for the
// object store and http(s):// for documents registered by URL. Remote
// documents are only ever fetched; Router.Delete leaves them alone.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedLocation = errors.New("unsupported blob location")

// Fetcher returns the raw bytes behind a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Store persists uploads and can later fetch or delete them.
type Store interface {
	Fetcher
	Put(ctx context.Context, key string, data []byte, contentType string) (location string, err error)
	Delete(ctx context.Context, location string) error
}

// Router sends each location to the backend that owns its scheme and writes
// new uploads to the primary store.
type Router struct {
	primary Store
	schemes map[string]Fetcher
}

func NewRouter(primary Store, http Fetcher) *Router {
	r := &Router{primary: primary, schemes: map[string]Fetcher{}}
	if http != nil {
		r.schemes["http"] = http
		r.schemes["https"] = http
	}
	return r
}

// Register routes scheme to f, e.g. the local store stays readable after
// switching uploads to the object store.
func (r *Router) Register(scheme string, f Fetcher) {
	r.schemes[scheme] = f
}

func (r *Router) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return r.primary.Put(ctx, key, data, contentType)
}

func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	f, err := r.backend(location)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, location)
}

func (r *Router) Delete(ctx context.Context, location string) error {
	f, err := r.backend(location)
	if err != nil {
		return err
	}
	if s, ok := f.(Store); ok {
		return s.Delete(ctx, location)
	}
	// Remote documents are not ours to delete.
	return nil
}

func (r *Router) backend(location string) (Fetcher, error) {
	scheme, _, ok := strings.Cut(location, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocation, location)
	}
	f, ok := r.schemes[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocation, location)
	}
	return f, nil
}
