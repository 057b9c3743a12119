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

// Package actor runs services behind mailboxes. A service is a plain value
// that is owned by exactly one goroutine, every other goroutine talks to it
// by sending messages to one of its addresses.
//
// The following diagram shows how a call reaches a service.
//
//	,------.          ,--------.    ,-------.          ,-------.
//	|Caller|          |Address |    |Mailbox|          |Service|
//	`--+---'          `---+----'    `---+---'          `---+---'
//	   |  Call(msg)       |             |                  |
//	   | ---------------->|             |                  |
//	   |                  |----.        |                  |
//	   |                  |    | wrap msg and a oneshot    |
//	   |                  |<---'  sender into an Envelope  |
//	   |                  |             |                  |
//	   |                  |  Send(env)  |                  |
//	   |                  | ----------->|                  |
//	   |                  |             |----.             |
//	   |                  |             |    | Recv        |
//	   |                  |             |<---'             |
//	   |                  |             |                  |
//	   |                  |             | env.Dispatch     |
//	   |                  |             | ---------------->|
//	   |                  |             |                  | Handle(svc)
//	   |                  |             |                  |----.
//	   |                  |             |                  |<---'
//	   |              result via the oneshot channel        |
//	   |<----------------------------------------------------
//	,--+---.          ,---+----.    ,---+---.          ,---+---.
//	|Caller|          |Address |    |Mailbox|          |Service|
//	`------'          `--------'    `-------'          `-------'
//
// Envelopes are dispatched one at a time in the order the mailbox received
// them, so a handler never races with another handler of the same service.
//
// A narrowed address created by Narrow accepts one message type only. It
// owns a private channel and a relay goroutine that forwards every message to
// the full address.
//
// Addr is also implemented by remote transports, see package rpc.
package actor
