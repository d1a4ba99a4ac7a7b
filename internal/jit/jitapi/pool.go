package jitapi

import "fmt"

const poolPageSize = 128

// Pool is an arena of T for one translation session. Items are handed out in order,
// stay at a fixed address until Reset, and are never freed individually. Pages are
// kept across sessions so a reused builder stops allocating once warmed up.
type Pool[T any] struct {
	pages []*[poolPageSize]T
	// used is the number of items handed out since the last Reset.
	used int
}

// NewPool returns an empty Pool.
func NewPool[T any]() Pool[T] {
	return Pool[T]{}
}

// Allocated returns the number of items handed out since the last Reset.
func (p *Pool[T]) Allocated() int {
	return p.used
}

// Allocate returns a zero T.
func (p *Pool[T]) Allocate() *T {
	page, index := p.used/poolPageSize, p.used%poolPageSize
	if page == len(p.pages) {
		p.pages = append(p.pages, new([poolPageSize]T))
	}
	p.used++
	return &p.pages[page][index]
}

// View returns the i-th item handed out since the last Reset.
func (p *Pool[T]) View(i int) *T {
	if i < 0 || i >= p.used {
		panic(fmt.Sprintf("BUG: pool item %d of %d", i, p.used))
	}
	return &p.pages[i/poolPageSize][i%poolPageSize]
}

// Reset zeroes the items handed out and makes them available again.
func (p *Pool[T]) Reset() {
	var zero T
	for i := 0; i < p.used; i++ {
		p.pages[i/poolPageSize][i%poolPageSize] = zero
	}
	p.used = 0
}
