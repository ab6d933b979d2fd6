// Package hardware tracks audio devices and engines that must be released
// before the process exits.
package hardware

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type resource struct {
	name    string
	release func() error
}

// Resources releases registered resources exactly once, newest first.
type Resources struct {
	logger *zap.Logger

	mu       sync.Mutex
	items    []resource
	released bool
}

// NewResources creates an empty registry.
func NewResources(logger *zap.Logger) *Resources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resources{logger: logger.Named("hardware")}
}

// Add registers release under name. Adding after Release runs release
// immediately.
func (r *Resources) Add(name string, release func() error) {
	if release == nil {
		return
	}

	r.mu.Lock()
	if !r.released {
		r.items = append(r.items, resource{name: name, release: release})
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := r.run(resource{name: name, release: release}); err != nil {
		r.logger.Warn("Failed to release late resource", zap.String("resource", name), zap.Error(err))
	}
}

// AddCloser registers c.Close.
func (r *Resources) AddCloser(name string, c interface{ Close() error }) {
	if c == nil {
		return
	}
	r.Add(name, c.Close)
}

// Len returns the number of resources waiting to be released.
func (r *Resources) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Release releases every resource in reverse order of registration. Later
// calls do nothing. A failing or panicking release does not stop the rest.
func (r *Resources) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	items := r.items
	r.items = nil
	r.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if err := r.run(item); err != nil {
			r.logger.Warn("Failed to release resource", zap.String("resource", item.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
			continue
		}
		r.logger.Debug("Released resource", zap.String("resource", item.name))
	}
	return errors.Join(errs...)
}

func (r *Resources) run(item resource) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("release panicked: %v", rec)
		}
	}()
	return item.release()
}
