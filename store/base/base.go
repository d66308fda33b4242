// Package base provides a base implementation of the store that can be used
// to implement common checks. The goal is to increase the amount of code
// sharing.
//
// The canonical approach to use this class is to embed in the exported driver
// struct such that calls are proxied through this implementation. First,
// declare the internal driver, as follows:
//
//	type driver struct { ... internal ...}
//
// The resulting type should implement store.Store such that it can be the
// target of a Base struct. The exported type can then be declared as follows:
//
//	type Driver struct {
//		Base
//	}
//
// Because Driver embeds Base, it effectively implements Base. If the driver
// needs to intercept a call, before going to base, Driver should implement
// that method. Effectively, Driver can intercept calls before coming in and
// driver implements the actual logic.
package base

import (
	"context"
	"io"
	"time"

	"github.com/docker/go-metrics"
	"github.com/ipfs/go-cid"

	"github.com/distribution/archiver/internal/dcontext"
	prometheus "github.com/distribution/archiver/metrics"
	"github.com/distribution/archiver/store"
)

// storeAction is the metrics of store related operations
var storeAction = prometheus.StoreNamespace.NewLabeledTimer("action", "The number of seconds that the store action takes", "driver", "action")

// storeErrors counts failed store operations.
var storeErrors = prometheus.StoreNamespace.NewLabeledCounter("errors", "The number of failed store actions", "driver", "action")

func init() {
	metrics.Register(prometheus.StoreNamespace)
}

// Base provides a wrapper around a store implementation that provides common
// path checking, debug logging and metrics.
type Base struct {
	store.Store
}

func (base *Base) setDriverName(e error) error {
	switch actual := e.(type) {
	case nil:
		return nil
	case store.PathNotFoundError:
		actual.DriverName = base.Store.Name()
		return actual
	case store.InvalidPathError:
		actual.DriverName = base.Store.Name()
		return actual
	case store.Error:
		actual.DriverName = base.Store.Name()
		return actual
	default:
		return store.Error{
			DriverName: base.Store.Name(),
			Detail:     e,
		}
	}
}

// observe returns a deferrable function which records the duration of the
// action and logs it at debug level.
func (base *Base) observe(ctx context.Context, action string, err *error) func() {
	startedAt := time.Now()

	return func() {
		name := base.Store.Name()
		storeAction.WithValues(name, action).UpdateSince(startedAt)
		if *err != nil {
			storeErrors.WithValues(name, action).Inc()
		}
		dcontext.GetLoggerWithFields(ctx, map[any]any{
			"store.driver":   name,
			"store.duration": time.Since(startedAt),
		}).Debug("Store." + action)
	}
}

// Mkdir wraps Mkdir of underlying store.
func (base *Base) Mkdir(ctx context.Context, path string) (err error) {
	if !store.PathRegexp.MatchString(path) {
		return store.InvalidPathError{Path: path, DriverName: base.Store.Name()}
	}

	defer base.observe(ctx, "Mkdir", &err)()

	return base.setDriverName(base.Store.Mkdir(ctx, path))
}

// Add wraps Add of underlying store.
func (base *Base) Add(ctx context.Context, r io.Reader) (c cid.Cid, err error) {
	defer base.observe(ctx, "Add", &err)()

	c, err = base.Store.Add(ctx, r)
	return c, base.setDriverName(err)
}

// Copy wraps Copy of underlying store.
func (base *Base) Copy(ctx context.Context, src cid.Cid, dest string) (err error) {
	if !store.PathRegexp.MatchString(dest) || dest == "/" {
		return store.InvalidPathError{Path: dest, DriverName: base.Store.Name()}
	}

	defer base.observe(ctx, "Copy", &err)()

	return base.setDriverName(base.Store.Copy(ctx, src, dest))
}

// Stat wraps Stat of underlying store.
func (base *Base) Stat(ctx context.Context, path string) (fi store.FileInfo, err error) {
	if !store.PathRegexp.MatchString(path) {
		return store.FileInfo{}, store.InvalidPathError{Path: path, DriverName: base.Store.Name()}
	}

	defer base.observe(ctx, "Stat", &err)()

	fi, err = base.Store.Stat(ctx, path)
	return fi, base.setDriverName(err)
}
