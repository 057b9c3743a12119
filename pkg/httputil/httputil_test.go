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

package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var httputilServerMsg = "this is httputil test server"

func runServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(httputilServerMsg))
	})
	mux.HandleFunc("/create", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "value"}`))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Token", req.Header.Get("X-Token"))
		_, _ = io.Copy(w, req.Body)
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func TestGet(t *testing.T) {
	t.Parallel()

	server := runServer()
	defer server.Close()
	cli, err := NewClient(nil, time.Second)
	require.NoError(t, err)

	resp, err := cli.Get(context.Background(), server.URL+"/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, httputilServerMsg, string(body))
}

func TestPostHeaders(t *testing.T) {
	t.Parallel()

	server := runServer()
	defer server.Close()
	cli, err := NewClient(nil, 0)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-Token", "abc")
	resp, err := cli.Post(context.Background(), server.URL+"/echo", headers, strings.NewReader("ping"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ping", string(body))
	require.Equal(t, "abc", resp.Header.Get("X-Token"))
}

func TestReadAll(t *testing.T) {
	t.Parallel()

	server := runServer()
	defer server.Close()
	cli, err := NewClient(nil, 0)
	require.NoError(t, err)

	respBody, err := cli.ReadAll(context.Background(), http.MethodPost, server.URL+"/create", nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"id": "value"}`), respBody)

	_, err = cli.ReadAll(context.Background(), http.MethodGet, server.URL+"/fail", nil, nil)
	statusErr, ok := err.(*StatusError)
	require.True(t, ok, "%v", err)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
	require.Equal(t, "boom\n", string(statusErr.Body))
	require.ErrorContains(t, err, "[500]")
}

func TestRequestCanceled(t *testing.T) {
	t.Parallel()

	server := runServer()
	defer server.Close()
	cli, err := NewClient(nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cli.Get(ctx, server.URL+"/")
	require.ErrorContains(t, err, context.Canceled.Error())
	_, err = cli.ReadAll(ctx, http.MethodGet, server.URL+"/", nil, nil)
	require.ErrorContains(t, err, context.Canceled.Error())
}
