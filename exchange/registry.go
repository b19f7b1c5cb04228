// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// Factory creates a gateway instance for the given credentials.
type Factory func(ctx context.Context, creds *Credentials) (Gateway, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a gateway factory under a case-insensitive exchange name. It
// is typically called from the init function of an exchange package.
func Register(name string, f Factory) error {
	if len(name) == 0 || f == nil {
		return os.ErrInvalid
	}
	key := strings.ToLower(name)

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[key]; ok {
		return fmt.Errorf("exchange %q is already registered: %w", name, os.ErrExist)
	}
	registry[key] = f
	return nil
}

// MustRegister is like Register, but panics on errors.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

// Open creates a gateway for a registered exchange name. Returns an
// *UnknownExchangeError if the name is not registered.
func Open(ctx context.Context, name string, creds *Credentials) (Gateway, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()

	if !ok {
		return nil, &UnknownExchangeError{Name: name}
	}
	if creds == nil {
		creds = new(Credentials)
	}
	gw, err := f(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("could not open exchange %q: %w", name, err)
	}
	return gw, nil
}

// Names returns the sorted list of registered exchange names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var names []string
	for k := range registry {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
