// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps lowercase rover names to their scrapers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Scraper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Scraper)}
}

// Register adds a scraper under its lowercase name, replacing any
// previous registration.
func (registry *Registry) Register(scraper Scraper) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.byName[strings.ToLower(scraper.Name())] = scraper
}

// Lookup returns the scraper for a rover name, case-insensitively.
func (registry *Registry) Lookup(name string) (Scraper, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	scraper, ok := registry.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownRover.New("%s", name)
	}
	return scraper, nil
}

// Names returns the registered rover names, sorted.
func (registry *Registry) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.byName))
	for name := range registry.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
