// Package dispatch holds the name to handler registry shared by the worker
// and host side routers.
package dispatch

import (
	"errors"
	"sort"
	"sync"
)

var ErrEmptyName = errors.New("handler name is required")

// Registry maps message names to handlers. Each execution context owns
// its own Registry; the zero value is not usable, use NewRegistry.
type Registry[H any] struct {
	mux      sync.RWMutex
	handlers map[string]H
}

func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{handlers: make(map[string]H)}
}

// Register installs handler for name, replacing any previous one.
func (r *Registry[H]) Register(name string, handler H) error {
	if len(name) <= 0 {
		return ErrEmptyName
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.handlers[name] = handler
	return nil
}

// RegisterAll installs every entry of handlers. Entries with an empty
// name are skipped and reported with ErrEmptyName.
func (r *Registry[H]) RegisterAll(handlers map[string]H) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	var err error
	for name, h := range handlers {
		if len(name) <= 0 {
			err = ErrEmptyName
			continue
		}
		r.handlers[name] = h
	}
	return err
}

func (r *Registry[H]) Unregister(name string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.handlers, name)
}

// UnregisterAll removes the given names, or every handler when called
// without names.
func (r *Registry[H]) UnregisterAll(names ...string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if len(names) == 0 {
		r.handlers = make(map[string]H)
		return
	}
	for _, name := range names {
		delete(r.handlers, name)
	}
}

func (r *Registry[H]) Lookup(name string) (H, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered names in lexical order.
func (r *Registry[H]) Names() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry[H]) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.handlers)
}
