package scape

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrScapeExists   = errors.New("scape already registered")
	ErrScapeNotFound = errors.New("scape not found")
)

type Factory func() Environment

var scapeRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: map[string]Factory{
		"corridor":       func() Environment { return CorridorScape{} },
		"cart-pole-lite": func() Environment { return CartPoleLiteScape{} },
	},
}

// Register adds a named environment factory.
func Register(name string, factory Factory) error {
	key := NormalizeName(name)
	if key == "" {
		return errors.New("scape name is required")
	}
	if factory == nil {
		return errors.New("scape factory is required")
	}

	scapeRegistry.mu.Lock()
	defer scapeRegistry.mu.Unlock()

	if _, exists := scapeRegistry.m[key]; exists {
		return fmt.Errorf("%w: %s", ErrScapeExists, key)
	}
	scapeRegistry.m[key] = factory
	return nil
}

func Resolve(name string) (Environment, error) {
	key := NormalizeName(name)

	scapeRegistry.mu.RLock()
	factory, ok := scapeRegistry.m[key]
	scapeRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScapeNotFound, name)
	}
	return factory(), nil
}

func List() []string {
	scapeRegistry.mu.RLock()
	defer scapeRegistry.mu.RUnlock()

	names := make([]string, 0, len(scapeRegistry.m))
	for name := range scapeRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeName canonicalizes scape names so "Cart_Pole_Lite" and
// "cart-pole-lite" resolve to the same entry.
func NormalizeName(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.TrimPrefix(normalized, "scape-")
	return strings.Trim(normalized, "-")
}
