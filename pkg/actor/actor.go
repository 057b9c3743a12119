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

package actor

import (
	"context"
)

// ID identifies a mailbox.
type ID string

// Message is a request that a service of type S handles, producing a result
// of type R. Handle is invoked on the mailbox goroutine, so it has exclusive
// access to svc. Handlers may enqueue further messages through rt.Addr().
type Message[S any, R any] interface {
	Handle(ctx context.Context, svc S, rt *Context[S]) R
}

// Starter is implemented by services that need to run code before the first
// message is dispatched.
type Starter[S any] interface {
	Started(ctx context.Context, rt *Context[S])
}

// Stopper is implemented by services that need to run code after the last
// message is dispatched.
type Stopper[S any] interface {
	Stopped(ctx context.Context, rt *Context[S])
}

// State is the lifecycle state of a mailbox.
type State int32

// All states of a mailbox.
const (
	StateNotStarted State = iota
	StateRunning
	StateDraining
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Addr is the address of a service. It is implemented by in-process
// mailboxes and by remote transports alike.
type Addr[S any] interface {
	// IsStop returns true if the address can no longer deliver envelopes.
	IsStop() bool
	// Post delivers env. If it returns an error, env has been canceled.
	Post(ctx context.Context, env Envelope[S]) error
}
