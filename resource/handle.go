// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "fmt"

// Kind is the type of resource a handle names.
type Kind uint8

const (
	// KindMesh is a vertex/index buffer pair.
	KindMesh Kind = iota + 1
	// KindTexture is a 2D sampled texture.
	KindTexture
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

type kindTag interface{ kind() Kind }

type meshTag struct{}

func (meshTag) kind() Kind { return KindMesh }

type textureTag struct{}

func (textureTag) kind() Kind { return KindTexture }

// Handle is a generational reference to a registry slot. The zero Handle
// is never valid. Handles are plain values and imply no ownership.
type Handle[K kindTag] struct {
	index uint32
	gen   uint32
}

// MeshHandle names a registered mesh.
type MeshHandle = Handle[meshTag]

// TextureHandle names a registered texture.
type TextureHandle = Handle[textureTag]

// Kind returns the resource kind.
func (h Handle[K]) Kind() Kind {
	var k K
	return k.kind()
}

// IsZero reports whether h is the zero handle.
func (h Handle[K]) IsZero() bool { return h.gen == 0 }

// Index returns the slot index.
func (h Handle[K]) Index() uint32 { return h.index }

// Generation returns the slot generation h was issued for.
func (h Handle[K]) Generation() uint32 { return h.gen }

func (h Handle[K]) String() string {
	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.index, h.gen)
}

// AnyHandle is a MeshHandle or a TextureHandle.
type AnyHandle interface {
	Kind() Kind
	Index() uint32
	Generation() uint32
	IsZero() bool
	String() string
}

type slot struct {
	gen uint32
	e   *entry
}

// pool is a slot array with a free list. Generations start at 1 and move
// on when a slot is freed, so a freed slot invalidates its handles before
// it is reused.
type pool struct {
	slots []slot
	free  []uint32
}

func (p *pool) alloc(e *entry) (index, gen uint32) {
	if n := len(p.free); n > 0 {
		index = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		index = uint32(len(p.slots))
		p.slots = append(p.slots, slot{gen: 1})
	}
	p.slots[index].e = e
	return index, p.slots[index].gen
}

func (p *pool) get(index, gen uint32) (*entry, bool) {
	if gen == 0 || int(index) >= len(p.slots) {
		return nil, false
	}
	s := p.slots[index]
	if s.gen != gen || s.e == nil {
		return nil, false
	}
	return s.e, true
}

func (p *pool) release(index uint32) {
	s := &p.slots[index]
	s.e = nil
	s.gen++
	if s.gen == 0 {
		// Wrapped: skip zero, which marks the zero handle.
		s.gen = 1
	}
	p.free = append(p.free, index)
}

// each calls fn for every live entry in slot order.
func (p *pool) each(fn func(*entry)) {
	for i := range p.slots {
		if e := p.slots[i].e; e != nil {
			fn(e)
		}
	}
}

func (p *pool) live() int {
	return len(p.slots) - len(p.free)
}
