package gauss

import (
	"sync"

	"gosift/internal/config"
)

// Registry publishes one Info to every pyramid that builds from it.
// Builds hold a read lock for their whole duration, so Publish waits for
// in-flight builds and never swaps tables underneath them.
type Registry struct {
	mu   sync.RWMutex
	info *Info
}

// Default is the process-wide registry used when a pyramid is not given
// one explicitly.
var Default = &Registry{}

// Init computes the tables for conf and publishes them.
func (r *Registry) Init(conf config.Config) error {
	info, err := Compute(conf)
	if err != nil {
		return err
	}
	r.Publish(info)
	return nil
}

// InitSigma republishes the tables with sigma0 and the level count replaced.
// The remaining parameters come from the currently published tables, or
// from config.Default when nothing has been published yet.
func (r *Registry) InitSigma(sigma float32, levels int) error {
	conf := config.Default()
	if cur := r.Snapshot(); cur != nil {
		conf = cur.Conf
	}
	conf.Sigma = sigma
	conf.Levels = levels
	return r.Init(conf)
}

// Publish replaces the current tables.
func (r *Registry) Publish(info *Info) {
	r.mu.Lock()
	r.info = info
	r.mu.Unlock()
}

// Acquire returns the current tables and holds them until Release.
func (r *Registry) Acquire() (*Info, error) {
	r.mu.RLock()
	if r.info == nil {
		r.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	return r.info, nil
}

// Release ends a successful Acquire.
func (r *Registry) Release() {
	r.mu.RUnlock()
}

// Snapshot returns the current tables without holding them.
func (r *Registry) Snapshot() *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// Reset drops the published tables.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.info = nil
	r.mu.Unlock()
}
