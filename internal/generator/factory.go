package generator

import (
	"fmt"
	"sync"

	"github.com/finsight/finsight/pkg/errors"
)

// ClientFactory is a function that creates a Client instance
type ClientFactory func() (Client, error)

// registry holds registered client factories
var (
	registry     = make(map[string]ClientFactory)
	registryLock sync.RWMutex
)

// Register registers a client factory with the given name
func Register(name string, factory ClientFactory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = factory
}

// Create creates a client by name using the registered factory
func Create(name string) (Client, error) {
	registryLock.RLock()
	factory, ok := registry[name]
	registryLock.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrCodeGeneratorNotFound,
			fmt.Sprintf("generator '%s' not registered", name))
	}

	return factory()
}

// List returns all registered client names
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a client is registered
func IsRegistered(name string) bool {
	registryLock.RLock()
	defer registryLock.RUnlock()
	_, ok := registry[name]
	return ok
}

// Unregister removes a client factory (mainly for testing)
func Unregister(name string) {
	registryLock.Lock()
	defer registryLock.Unlock()
	delete(registry, name)
}
