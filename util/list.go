package util

import "errors"

var ErrOutOfBounds = errors.New("index out of bounds")

// Index refers to an element of a List. The zero Index is a sentinel and is
// never handed out, so it can be used as "not linked".
type Index int32

const Nil Index = 0

type listNode[T any] struct {
	v          T
	prev, next Index
	used       bool
}

// List of doubly-linked nodes stored in an arena.
//
// Elements are referenced by Index, which stays stable for as long as the
// element is linked. Link and unlink are O(1) and freed slots are reused.
type List[T any] struct {
	// nodes[0] is the sentinel: nodes[0].next is the front, nodes[0].prev the
	// back.
	nodes []listNode[T]
	free  []Index
	n     int
}

func NewList[T any]() *List[T] {
	l := &List[T]{}
	l.lazyInit()
	return l
}

func (l *List[T]) lazyInit() {
	if len(l.nodes) == 0 {
		l.nodes = append(l.nodes, listNode[T]{used: true})
	}
}

func (l *List[T]) alloc(v T) Index {
	var ix Index
	if n := len(l.free); n > 0 {
		ix = l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[ix] = listNode[T]{v: v, used: true}
	} else {
		ix = Index(len(l.nodes))
		l.nodes = append(l.nodes, listNode[T]{v: v, used: true})
	}
	return ix
}

func (l *List[T]) link(ix, after Index) {
	next := l.nodes[after].next
	l.nodes[ix].prev = after
	l.nodes[ix].next = next
	l.nodes[after].next = ix
	l.nodes[next].prev = ix
	l.n++
}

// PushBack appends v and returns its Index.
func (l *List[T]) PushBack(v T) Index {
	l.lazyInit()
	ix := l.alloc(v)
	l.link(ix, l.nodes[Nil].prev)
	return ix
}

// PushFront prepends v and returns its Index.
func (l *List[T]) PushFront(v T) Index {
	l.lazyInit()
	ix := l.alloc(v)
	l.link(ix, Nil)
	return ix
}

// Remove unlinks the element at ix and returns its value. It panics with
// ErrOutOfBounds if ix does not refer to a linked element.
func (l *List[T]) Remove(ix Index) T {
	if !l.Contains(ix) {
		panic(ErrOutOfBounds)
	}

	node := &l.nodes[ix]
	l.nodes[node.prev].next = node.next
	l.nodes[node.next].prev = node.prev

	v := node.v
	*node = listNode[T]{}
	l.free = append(l.free, ix)
	l.n--

	return v
}

// Contains returns true if ix refers to a linked element.
func (l *List[T]) Contains(ix Index) bool {
	return ix > Nil && int(ix) < len(l.nodes) && l.nodes[ix].used
}

// Front returns the Index of the first element or Nil.
func (l *List[T]) Front() Index {
	if l.n == 0 {
		return Nil
	}
	return l.nodes[Nil].next
}

// Back returns the Index of the last element or Nil.
func (l *List[T]) Back() Index {
	if l.n == 0 {
		return Nil
	}
	return l.nodes[Nil].prev
}

// Next returns the Index following ix or Nil at the end of the list.
func (l *List[T]) Next(ix Index) Index {
	if !l.Contains(ix) {
		panic(ErrOutOfBounds)
	}
	return l.nodes[ix].next
}

// Prev returns the Index preceding ix or Nil at the start of the list.
func (l *List[T]) Prev(ix Index) Index {
	if !l.Contains(ix) {
		panic(ErrOutOfBounds)
	}
	return l.nodes[ix].prev
}

// At returns the value stored at ix.
func (l *List[T]) At(ix Index) T {
	if !l.Contains(ix) {
		panic(ErrOutOfBounds)
	}
	return l.nodes[ix].v
}

// PopFront unlinks and returns the first element.
func (l *List[T]) PopFront() (v T, ok bool) {
	if l.n == 0 {
		return v, false
	}
	return l.Remove(l.nodes[Nil].next), true
}

func (l *List[T]) Size() int {
	return l.n
}

func (l *List[T]) Empty() bool {
	return l.n == 0
}

// Iterate calls fn front to back until fn returns false. fn must not modify
// the list.
func (l *List[T]) Iterate(fn func(ix Index, v T) bool) {
	if l.n == 0 {
		return
	}
	for ix := l.nodes[Nil].next; ix != Nil; ix = l.nodes[ix].next {
		if !fn(ix, l.nodes[ix].v) {
			return
		}
	}
}
