// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Registered device names.
const (
	// NameSoft is the CPU device.
	NameSoft = "soft"
	// NameWGPU is the gogpu/wgpu HAL device.
	NameWGPU = "wgpu"
)

// Options are passed to a Factory.
type Options struct {
	// Provider is the host's GPU device. Required by the wgpu device,
	// ignored by the soft one.
	Provider gpucontext.DeviceProvider

	// Latency is how many Completed calls a soft submission takes to
	// finish. Ignored by hardware devices.
	Latency int
}

// Factory creates a device.
type Factory func(opts Options) (Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Selection order for Default: first registered name wins.
	priority = []string{NameWGPU, NameSoft}
)

// Register registers a device factory under name, replacing any previous
// registration. It is typically called from an init function.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a factory. It is mostly useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered device names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the device registered under name.
func Open(name string, opts Options) (Device, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotAvailable, name)
	}
	return f(opts)
}

// OpenDefault tries each known device in priority order and returns the
// first that opens. The wgpu device is skipped when opts carries no
// provider.
func OpenDefault(opts Options) (Device, error) {
	var lastErr error
	for _, name := range priority {
		if name == NameWGPU && opts.Provider == nil {
			continue
		}
		dev, err := Open(name, opts)
		if err == nil {
			return dev, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNotAvailable
	}
	return nil, lastErr
}
