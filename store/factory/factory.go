package factory

import (
	"context"
	"fmt"
	"sort"

	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/store"
)

// storeFactories stores an internal mapping between store driver names and
// their respective factories
var storeFactories = make(map[string]StoreFactory)

// StoreFactory is a factory interface for creating store.Store interfaces
// Store drivers should call Register() with a factory to make the driver
// available by name.
type StoreFactory interface {
	// Create returns a new store.Store with the given parameters
	// Parameters will vary by driver and may be ignored
	// Each parameter key must only consist of lowercase letters and numbers
	Create(ctx context.Context, parameters map[string]interface{}) (store.Store, error)
}

// Register makes a store driver available by the provided name.
// If Register is called twice with the same name or if driver factory is nil, it panics.
func Register(name string, factory StoreFactory) {
	if factory == nil {
		panic("Must not provide nil StoreFactory")
	}
	_, registered := storeFactories[name]
	if registered {
		panic(fmt.Sprintf("StoreFactory named %s already registered", name))
	}

	storeFactories[name] = factory
}

// Create a new store.Store with the given name and parameters. To use a
// driver, the StoreFactory must first be registered with the given name. If
// no drivers are found, an InvalidStoreDriverError is returned
func Create(ctx context.Context, name string, parameters map[string]interface{}) (store.Store, error) {
	storeFactory, ok := storeFactories[name]
	if !ok {
		return nil, InvalidStoreDriverError{name}
	}

	dcontext.GetLogger(ctx).WithField("store.driver", name).Debug("creating store")
	return storeFactory.Create(ctx, parameters)
}

// Names returns the sorted names of all registered drivers.
func Names() []string {
	names := make([]string, 0, len(storeFactories))
	for name := range storeFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvalidStoreDriverError records an attempt to construct an unregistered
// store driver
type InvalidStoreDriverError struct {
	Name string
}

func (err InvalidStoreDriverError) Error() string {
	return fmt.Sprintf("store driver not registered: %s", err.Name)
}
