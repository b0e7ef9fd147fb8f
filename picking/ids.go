// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import (
	"math"
	"sort"
)

// PickID is the value an entity writes into the identifier buffer.
// Zero is the background.
type PickID = uint32

// idPool hands out the lowest free non-zero id.
type idPool struct {
	next uint32   // smallest never-issued id
	free []uint32 // returned ids, ascending
}

func newIDPool() *idPool {
	return &idPool{next: 1}
}

func (p *idPool) take() (uint32, bool) {
	if len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		return id, true
	}
	if p.next == math.MaxUint32 {
		return 0, false
	}
	id := p.next
	p.next++
	return id, true
}

func (p *idPool) put(id uint32) {
	if id == 0 {
		return
	}
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i] >= id })
	if i < len(p.free) && p.free[i] == id {
		return
	}
	p.free = append(p.free, 0)
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = id
}
