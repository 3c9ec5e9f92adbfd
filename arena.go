package ca

import (
	"sync"

	"github.com/Araneidae/epics-ca/cadef"
)

// arena maps correlation tokens handed to the bus onto live Go values. A
// token packs a slot index with the slot's generation, so a token that
// outlives its slot (a late or duplicated callback) never resolves to the
// slot's next occupant.
type arena[T any] struct {
	mu    sync.Mutex
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

type arenaSlot[T any] struct {
	gen   uint32
	used  bool
	value T
}

func makeToken(index, gen uint32) cadef.Token {
	return cadef.Token(uint64(gen)<<32 | uint64(index))
}

func splitToken(tok cadef.Token) (index, gen uint32) {
	return uint32(tok), uint32(tok >> 32)
}

// insert stores v and returns its token. Generations start at 1, so the
// zero token is never valid.
func (a *arena[T]) insert(v T) cadef.Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}

	s := &a.slots[index]
	s.gen++
	s.used = true
	s.value = v
	a.live++
	return makeToken(index, s.gen)
}

// slot returns the live slot for tok; must be called with the lock held.
func (a *arena[T]) slot(tok cadef.Token) *arenaSlot[T] {
	index, gen := splitToken(tok)
	if int(index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[index]
	if !s.used || s.gen != gen {
		return nil
	}
	return s
}

func (a *arena[T]) lookup(tok cadef.Token) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s := a.slot(tok); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// remove frees the slot for tok and returns what it held.
func (a *arena[T]) remove(tok cadef.Token) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	s := a.slot(tok)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.used = false
	index, _ := splitToken(tok)
	a.free = append(a.free, index)
	a.live--
	return v, true
}

func (a *arena[T]) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
