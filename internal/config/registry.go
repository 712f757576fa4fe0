package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/pitchtrace/pkg/audio"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// EngineFactory builds an inference engine from its config entry.
type EngineFactory func(EngineEntry) (pitch.Engine, error)

// DeviceFactory builds a capture device from the capture config.
type DeviceFactory func(CaptureConfig) (audio.Device, error)

// Registry maps engine and device names to their constructors.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]EngineFactory
	devices map[string]DeviceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]EngineFactory),
		devices: make(map[string]DeviceFactory),
	}
}

// RegisterEngine registers an engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// RegisterDevice registers a capture device factory under name.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// CreateEngine instantiates the engine registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateEngine(entry EngineEntry) (pitch.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDevice instantiates the capture device registered under cfg.Name.
func (r *Registry) CreateDevice(cfg CaptureConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.devices[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// Names returns the sorted registered engine and device names.
func (r *Registry) Names() (engines, devices []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := range r.engines {
		engines = append(engines, n)
	}
	for n := range r.devices {
		devices = append(devices, n)
	}
	slices.Sort(engines)
	slices.Sort(devices)
	return engines, devices
}
