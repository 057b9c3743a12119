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

package uuid

import (
	"strconv"

	guuid "github.com/google/uuid"
	"go.uber.org/atomic"
)

// Generator defines an interface that can generate a uuid
type Generator interface {
	NewString() string
}

type generatorImpl struct{}

func (g *generatorImpl) NewString() string {
	return guuid.New().String()
}

// NewGenerator creates a generator of random (version 4) uuids.
func NewGenerator() Generator {
	return &generatorImpl{}
}

// SequenceGenerator generates prefix-1, prefix-2 and so on. It is safe for
// concurrent use.
type SequenceGenerator struct {
	prefix string
	seq    atomic.Uint64
}

// NewSequenceGenerator creates a SequenceGenerator.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewString implements Generator.NewString
func (g *SequenceGenerator) NewString() string {
	return g.prefix + "-" + strconv.FormatUint(g.seq.Inc(), 10)
}
