// Package bitfield tracks a set of piece indices, one bit per piece, most
// significant bit first as in the BitTorrent wire format.
package bitfield

import (
	"fmt"
	"math/bits"
	"sync"
)

// Bitfield records which pieces of a torrent hashed correctly. It is safe
// for concurrent use.
type Bitfield struct {
	bits []byte
	len  int
	mu   sync.RWMutex
}

// New creates an empty bitfield for numPieces pieces.
func New(numPieces int) *Bitfield {
	numBytes := (numPieces + 7) / 8
	return &Bitfield{
		bits: make([]byte, numBytes),
		len:  numPieces,
	}
}

// Set marks a piece.
func (bf *Bitfield) Set(index int) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if index < 0 || index >= bf.len {
		return fmt.Errorf("piece index %d out of range [0, %d)", index, bf.len)
	}

	bf.bits[index/8] |= 1 << (7 - uint(index%8))
	return nil
}

// Has reports whether a piece is marked.
func (bf *Bitfield) Has(index int) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	return bf.has(index)
}

func (bf *Bitfield) has(index int) bool {
	if index < 0 || index >= bf.len {
		return false
	}
	return bf.bits[index/8]&(1<<(7-uint(index%8))) != 0
}

// Len returns the number of pieces the bitfield covers.
func (bf *Bitfield) Len() int {
	return bf.len
}

// Count returns the number of marked pieces.
func (bf *Bitfield) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	count := 0
	for _, b := range bf.bits {
		count += bits.OnesCount8(b)
	}
	return count
}

// Missing returns the unmarked piece indices in ascending order.
func (bf *Bitfield) Missing() []int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	var out []int
	for i := range bf.len {
		if !bf.has(i) {
			out = append(out, i)
		}
	}
	return out
}

// IsComplete reports whether every piece is marked.
func (bf *Bitfield) IsComplete() bool {
	return bf.Count() == bf.len
}
