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

package kvservice

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/actor"
	"github.com/pingcap/serviceless/pkg/rpc"
	"github.com/pingcap/serviceless/pkg/rpc/grpcbridge"
)

// Start runs a new store in its own mailbox.
func Start(ctx context.Context, name string) (*actor.Context[*Store], *actor.ServiceAddress[*Store]) {
	rt := actor.NewContext[*Store](actor.WithName(name))
	return rt, rt.Run(ctx, NewStore())
}

// Register exposes every store message on srv and gsrv, either may be nil.
func Register(srv *rpc.Server, gsrv *grpcbridge.Server, addr actor.Addr[*Store]) error {
	if srv != nil {
		for _, register := range []func() error{
			func() error { return rpc.Handle[Put, *Store, GetResult](srv, Put{}.Method(), addr) },
			func() error { return rpc.Handle[Get, *Store, GetResult](srv, Get{}.Method(), addr) },
			func() error { return rpc.Handle[Delete, *Store, bool](srv, Delete{}.Method(), addr) },
			func() error { return rpc.Handle[Incr, *Store, IncrResult](srv, Incr{}.Method(), addr) },
			func() error { return rpc.Handle[Keys, *Store, []string](srv, Keys{}.Method(), addr) },
			func() error { return rpc.Handle[Stats, *Store, StatsResult](srv, Stats{}.Method(), addr) },
			func() error { return rpc.Handle[Pause, *Store, bool](srv, Pause{}.Method(), addr) },
		} {
			if err := register(); err != nil {
				return errors.Trace(err)
			}
		}
	}
	if gsrv != nil {
		for _, register := range []func() error{
			func() error { return grpcbridge.Handle[Put, *Store, GetResult](gsrv, Put{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Get, *Store, GetResult](gsrv, Get{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Delete, *Store, bool](gsrv, Delete{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Incr, *Store, IncrResult](gsrv, Incr{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Keys, *Store, []string](gsrv, Keys{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Stats, *Store, StatsResult](gsrv, Stats{}.Method(), addr) },
			func() error { return grpcbridge.Handle[Pause, *Store, bool](gsrv, Pause{}.Method(), addr) },
		} {
			if err := register(); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}
