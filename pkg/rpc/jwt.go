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

package rpc

import (
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
)

const (
	// maxIssuedAtSkew is how far the iat claim of a token may be away from
	// the server clock.
	maxIssuedAtSkew = 60 * time.Second
	minSecretLength = 16
)

// LoadJWTSecret reads a shared secret from path. A secret written as hex,
// with or without the 0x prefix, is decoded, any other content is used as is.
func LoadJWTSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read jwt secret %s", path)
	}
	return ParseJWTSecret(data)
}

// ParseJWTSecret parses a shared secret, see LoadJWTSecret.
func ParseJWTSecret(data []byte) ([]byte, error) {
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "0x")
	var secret []byte
	if decoded, err := hex.DecodeString(text); err == nil {
		secret = decoded
	} else {
		secret = bytes.TrimSpace(data)
	}
	if len(secret) < minSecretLength {
		return nil, cerrors.ErrInvalidJWTSecret.GenWithStackByArgs()
	}
	return secret, nil
}

// buildToken signs a HS256 token that only carries the iat claim.
func buildToken(secret []byte, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
	})
	signed, err := token.SignedString(secret)
	return signed, errors.Trace(err)
}

// verifyToken checks the signature of a bearer token and that it was
// issued around now.
func verifyToken(secret []byte, tokenString string, now time.Time) error {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return cerrors.ErrRPCUnauthorized.GenWithStackByArgs(err.Error())
	}
	iat, err := token.Claims.GetIssuedAt()
	if err != nil || iat == nil {
		return cerrors.ErrRPCUnauthorized.GenWithStackByArgs("missing iat claim")
	}
	skew := now.Sub(iat.Time)
	if skew > maxIssuedAtSkew || skew < -maxIssuedAtSkew {
		return cerrors.ErrRPCUnauthorized.GenWithStackByArgs("stale token")
	}
	return nil
}
