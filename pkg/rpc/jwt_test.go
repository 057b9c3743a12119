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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseJWTSecret(t *testing.T) {
	t.Parallel()

	hexSecret := "0x" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	secret, err := ParseJWTSecret([]byte(hexSecret + "\n"))
	require.NoError(t, err)
	require.Len(t, secret, 32)
	require.Equal(t, byte(0x11), secret[1])

	secret, err = ParseJWTSecret([]byte("00112233445566778899aabbccddeeff"))
	require.NoError(t, err)
	require.Len(t, secret, 16)

	secret, err = ParseJWTSecret([]byte("not hex but long enough"))
	require.NoError(t, err)
	require.Equal(t, []byte("not hex but long enough"), secret)

	_, err = ParseJWTSecret([]byte("short"))
	require.True(t, cerrors.ErrInvalidJWTSecret.Equal(err), "%v", err)
}

func TestLoadJWTSecret(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jwt.hex")
	require.NoError(t, os.WriteFile(path, []byte("serviceless-shared-secret\n"), 0o600))
	secret, err := LoadJWTSecret(path)
	require.NoError(t, err)
	require.Equal(t, []byte("serviceless-shared-secret"), secret)

	// testSecret happens to be valid hex.
	require.NoError(t, os.WriteFile(path, testSecret, 0o600))
	secret, err = LoadJWTSecret(path)
	require.NoError(t, err)
	require.Len(t, secret, 16)

	_, err = LoadJWTSecret(filepath.Join(t.TempDir(), "missing"))
	require.Regexp(t, ".*read jwt secret.*", err)
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	token, err := buildToken(testSecret, now)
	require.NoError(t, err)

	require.NoError(t, verifyToken(testSecret, token, now))
	require.NoError(t, verifyToken(testSecret, token, now.Add(maxIssuedAtSkew)))
	require.NoError(t, verifyToken(testSecret, token, now.Add(-maxIssuedAtSkew)))

	cases := []struct {
		name   string
		secret []byte
		token  string
		now    time.Time
	}{
		{"stale", testSecret, token, now.Add(maxIssuedAtSkew + time.Second)},
		{"future", testSecret, token, now.Add(-maxIssuedAtSkew - time.Second)},
		{"wrong secret", []byte("fedcba9876543210fedcba9876543210"), token, now},
		{"garbage", testSecret, "a.b.c", now},
	}
	for _, tc := range cases {
		err := verifyToken(tc.secret, tc.token, tc.now)
		require.True(t, cerrors.ErrRPCUnauthorized.Equal(err), "%s: %v", tc.name, err)
	}

	// Only HS256 is accepted.
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"iat": now.Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	require.True(t, cerrors.ErrRPCUnauthorized.Equal(verifyToken(testSecret, hs512, now)))

	noIat, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).SignedString(testSecret)
	require.NoError(t, err)
	require.True(t, cerrors.ErrRPCUnauthorized.Equal(verifyToken(testSecret, noIat, now)))
}
