// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"testing"
)

type stubDevice struct {
	Device
	name string
}

func (s stubDevice) Name() string { return s.name }

func TestRegistry(t *testing.T) {
	const name = "stub"
	Register(name, func(Options) (Device, error) {
		return stubDevice{name: name}, nil
	})
	defer Unregister(name)

	found := false
	for _, n := range Available() {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("Available() = %v, missing %q", Available(), name)
	}

	dev, err := Open(name, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dev.Name() != name {
		t.Errorf("Name() = %q, want %q", dev.Name(), name)
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", Options{})
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Open() error = %v, want ErrNotAvailable", err)
	}
}

func TestOpenDefaultSkipsWGPUWithoutProvider(t *testing.T) {
	called := false
	Register(NameWGPU, func(Options) (Device, error) {
		called = true
		return nil, ErrNotAvailable
	})
	defer Unregister(NameWGPU)
	Register(NameSoft, func(Options) (Device, error) {
		return stubDevice{name: NameSoft}, nil
	})
	defer Unregister(NameSoft)

	dev, err := OpenDefault(Options{})
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	if called {
		t.Error("wgpu factory called without a provider")
	}
	if dev.Name() != NameSoft {
		t.Errorf("Name() = %q, want %q", dev.Name(), NameSoft)
	}
}

func TestMeshBindingIndexed(t *testing.T) {
	if (MeshBinding{VertexBuffer: 1}).Indexed() {
		t.Error("non-indexed binding reported indexed")
	}
	if !(MeshBinding{VertexBuffer: 1, IndexBuffer: 2}).Indexed() {
		t.Error("indexed binding reported non-indexed")
	}
}
