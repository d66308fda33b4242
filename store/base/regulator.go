package base

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"sync"

	"github.com/distribution/archiver/store"
	"github.com/ipfs/go-cid"
)

type regulator struct {
	store.Store
	*sync.Cond

	available uint64
}

// GetLimitFromParameter takes an interface type as decoded from the YAML
// configuration and returns a uint64 representing the maximum number of
// concurrent calls given a minimum limit and default.
//
// If the parameter supplied is of an invalid type this returns an error.
func GetLimitFromParameter(param interface{}, min, def uint64) (uint64, error) {
	limit := def

	switch v := param.(type) {
	case string:
		var err error
		if limit, err = strconv.ParseUint(v, 0, 64); err != nil {
			return limit, fmt.Errorf("parameter must be an integer, '%v' invalid", param)
		}
	case uint64:
		limit = v
	case int, int32, int64:
		val := reflect.ValueOf(v).Convert(reflect.TypeOf(param)).Int()
		// if param is negative casting to uint64 will wrap around and
		// give you the hugest thread limit ever. Let's be sensible, here
		if val > 0 {
			limit = uint64(val)
		} else {
			limit = min
		}
	case uint, uint32:
		limit = reflect.ValueOf(v).Convert(reflect.TypeOf(param)).Uint()
	case nil:
		// use the default
	default:
		return 0, fmt.Errorf("invalid value '%#v'", param)
	}

	if limit < min {
		return min, nil
	}

	return limit, nil
}

// NewRegulator wraps the given store and is used to regulate concurrent calls
// to the given store to a maximum of the given limit. This is useful for
// stores that would otherwise be flooded with requests by a large batch.
func NewRegulator(s store.Store, limit uint64) store.Store {
	return &regulator{
		Store:     s,
		Cond:      sync.NewCond(&sync.Mutex{}),
		available: limit,
	}
}

func (r *regulator) enter() {
	r.L.Lock()
	for r.available == 0 {
		r.Wait()
	}
	r.available--
	r.L.Unlock()
}

func (r *regulator) exit() {
	r.L.Lock()
	r.Signal()
	r.available++
	r.L.Unlock()
}

// Name returns the human-readable "name" of the driver, useful in error
// messages and logging. By convention, this will just be the registration
// name, but drivers may provide other information here.
func (r *regulator) Name() string {
	r.enter()
	defer r.exit()

	return r.Store.Name()
}

// Mkdir creates the directory at path in the mutable namespace.
func (r *regulator) Mkdir(ctx context.Context, path string) error {
	r.enter()
	defer r.exit()

	return r.Store.Mkdir(ctx, path)
}

// Add stores the content read from reader.
func (r *regulator) Add(ctx context.Context, reader io.Reader) (cid.Cid, error) {
	r.enter()
	defer r.exit()

	return r.Store.Add(ctx, reader)
}

// Copy links stored content into the mutable namespace.
func (r *regulator) Copy(ctx context.Context, src cid.Cid, dest string) error {
	r.enter()
	defer r.exit()

	return r.Store.Copy(ctx, src, dest)
}

// Stat retrieves the FileInfo for the given path.
func (r *regulator) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	r.enter()
	defer r.exit()

	return r.Store.Stat(ctx, path)
}
