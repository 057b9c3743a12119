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

package actor_test

import (
	"context"
	"fmt"

	"github.com/pingcap/serviceless/pkg/actor"
	"go.uber.org/zap"
)

type adder struct {
	total int
}

type add int

func (m add) Handle(_ context.Context, svc *adder, _ *actor.Context[*adder]) int {
	svc.total += int(m)
	return svc.total
}

func Example() {
	ctx := context.Background()
	rt := actor.NewContext[*adder](
		actor.WithName("adder"), actor.WithLogger(zap.NewNop()))
	addr := rt.Run(ctx, &adder{})

	if err := actor.Send[*adder, int](addr, add(40)); err != nil {
		panic(err)
	}
	total, err := actor.Call[*adder, int](ctx, addr, add(2))
	if err != nil {
		panic(err)
	}
	fmt.Println(total)

	narrowed := actor.Narrow[add, *adder, int](ctx, addr)
	total, err = narrowed.Call(ctx, add(1))
	if err != nil {
		panic(err)
	}
	fmt.Println(total)

	narrowed.Close()
	addr.Close()
	<-rt.Done()
	// Output:
	// 42
	// 43
}
