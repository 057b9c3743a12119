// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements an intrusive multi-producer, single-consumer
// queue.
//
// The algorithm is the node based MPSC queue described at
// http://www.1024cores.net/home/lock-free-algorithms/queues/non-intrusive-mpsc-node-based-queue.
// Push is wait-free. Pop must never be called by more than one goroutine at a
// time.
package queue

import (
	"runtime"

	"go.uber.org/atomic"
)

// PopResult classifies the outcome of a Pop.
type PopResult int

const (
	// Data means a value has been popped.
	Data PopResult = iota
	// Empty means there is no pending node and no push in flight.
	Empty
	// Inconsistent means a producer has swapped the head but has not linked
	// the node yet. Popping again "soon" will succeed.
	Inconsistent
)

// String implements fmt.Stringer.
func (r PopResult) String() string {
	switch r {
	case Data:
		return "data"
	case Empty:
		return "empty"
	case Inconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Queue is a lock-free MPSC queue. The zero value is not usable, use New.
type Queue[T any] struct {
	// head is the most recently pushed node, shared by all producers.
	head atomic.Pointer[node[T]]
	// tail is the stub (already consumed) node, owned by the consumer.
	tail *node[T]
}

// New returns an empty queue anchored by a stub node.
func New[T any]() *Queue[T] {
	stub := &node[T]{}
	q := &Queue[T]{tail: stub}
	q.head.Store(stub)
	return q
}

// Push appends v to the queue. It is safe to call from any goroutine.
func (q *Queue[T]) Push(v T) {
	n := &node[T]{value: v}
	prev := q.head.Swap(n)
	// Between the swap and the store below the queue is inconsistent.
	prev.next.Store(n)
}

// Pop removes the oldest value.
//
// Pop is not safe for concurrent use, callers must guarantee a single consumer.
func (q *Queue[T]) Pop() (T, PopResult) {
	var zero T
	tail := q.tail
	next := tail.next.Load()
	if next != nil {
		// next becomes the new stub, the old one is unreachable from now on.
		q.tail = next
		v := next.value
		next.value = zero
		return v, Data
	}
	if q.head.Load() == tail {
		return zero, Empty
	}
	return zero, Inconsistent
}

// PopSpin is like Pop but spins while the queue is inconsistent. The second
// return value is false if the queue is empty.
func (q *Queue[T]) PopSpin() (T, bool) {
	for {
		v, res := q.Pop()
		switch res {
		case Data:
			return v, true
		case Empty:
			return v, false
		default:
			// A producer is between its swap and link, it will finish shortly.
			runtime.Gosched()
		}
	}
}

// Drain pops every remaining value and hands it to fn. fn may be nil.
// The same single-consumer rule as Pop applies.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.PopSpin()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			fn(v)
		}
	}
}
