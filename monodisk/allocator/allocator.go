// Package allocator hands out and reclaims data blocks. Callers hold the global
// metadata mutex around every call.
package allocator

import (
	"errors"
	"fmt"

	"github.com/rarydzu/monodisk/monodisk/layout"
)

var ErrInsufficientSpace = errors.New("insufficient space")

type Allocator struct {
	meta *layout.Metadata
}

func New(meta *layout.Metadata) *Allocator {
	return &Allocator{meta: meta}
}

// CountFree returns number of free data blocks
func (a *Allocator) CountFree() int {
	n := 0
	for i := a.meta.DataBlockStart(); i < a.meta.MaxBlocks(); i++ {
		if a.meta.Free[i] {
			n++
		}
	}
	return n
}

// Allocate takes the n lowest free data blocks, links them into a chain and returns
// them in chain order. Nothing changes when fewer than n blocks are free.
func (a *Allocator) Allocate(n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	blocks := make([]int, 0, n)
	for i := a.meta.DataBlockStart(); i < a.meta.MaxBlocks() && len(blocks) < n; i++ {
		if a.meta.Free[i] {
			blocks = append(blocks, i)
		}
	}
	if len(blocks) < n {
		return nil, fmt.Errorf("%w: need %d blocks, %d free", ErrInsufficientSpace, n, len(blocks))
	}
	for i, b := range blocks {
		a.meta.Free[b] = false
		a.meta.Nodes[b].Next = layout.End
		if i > 0 {
			a.meta.Nodes[blocks[i-1]].Next = int32(b)
		}
	}
	return blocks, nil
}

// Chain returns the blocks of the chain starting at head
func (a *Allocator) Chain(head int) []int {
	blocks := []int{}
	for b := head; b != layout.End; b = int(a.meta.Nodes[b].Next) {
		blocks = append(blocks, b)
	}
	return blocks
}

// Free releases the chain starting at head. When zero is not nil it is called for
// every block before the block is released; an error stops the walk.
func (a *Allocator) Free(head int, zero func(index int) error) error {
	b := head
	for b != layout.End {
		next := int(a.meta.Nodes[b].Next)
		if zero != nil {
			if err := zero(b); err != nil {
				return err
			}
		}
		a.meta.Free[b] = true
		a.meta.Nodes[b].Next = layout.End
		b = next
	}
	return nil
}
