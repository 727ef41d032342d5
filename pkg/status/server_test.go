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

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phayes/freeport"
	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/pingcap/dataflow/pkg/scheduler"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func nopFire(actor.Context) actor.FiringResult { return actor.FiringResult{} }

func newTestServer(t *testing.T) *Server {
	g := actor.NewGraph()
	src, err := g.AddActor("src", 0, 1, nopFire)
	require.NoError(t, err)
	sink, err := g.AddActor("sink", 1, 0, nopFire)
	require.NoError(t, err)
	require.NoError(t, g.Connect(src.ID, 0, sink.ID, 0))

	mapping := &mapper.Mapping{
		ThreadNb: 2,
		Units: []mapper.Unit{
			{ID: 0, ActorCount: 1, Actors: []actor.ID{src.ID}},
			{ID: 1, ActorCount: 1, Actors: []actor.ID{sink.ID}},
		},
	}
	cluster, err := scheduler.NewCluster(g, mapping, scheduler.Config{
		Policy: scheduler.PolicyDDD, Topology: scheduler.TopologyRing,
	})
	require.NoError(t, err)
	return NewServer(g, cluster, NewRegistry(), "run-1")
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(context.Background(), method, path, strings.NewReader(body))
	require.NoError(t, err)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status ProcessStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "run-1", status.RunID)
	require.False(t, status.Stopped)
	require.Len(t, status.Actors, 2)
	require.Equal(t, "sink", status.Actors[1].Name)
	require.Equal(t, 1, status.Actors[1].Owner)
	require.Equal(t, 1, status.Actors[1].Unit)
}

func TestSchedulers(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/v1/schedulers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status SchedulersStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status.Schedulers, 2)
	require.Equal(t, []string{"src"}, status.Schedulers[0].Actors)
	require.Equal(t, []mapper.UnitView{
		{ID: 0, Actors: []string{"src"}},
		{ID: 1, Actors: []string{"sink"}},
	}, status.Units)
	require.Zero(t, status.Skewness)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestLogLevel(t *testing.T) {
	s := newTestServer(t)
	defer log.SetLevel(zapcore.InfoLevel)

	w := do(t, s, http.MethodPost, "/api/v1/log", `"debug"`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, zapcore.DebugLevel, log.GetLevel())

	w = do(t, s, http.MethodPost, "/api/v1/log", `"loud"`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/log", `debug`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var herr httpError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &herr))
	require.Equal(t, "DPN:ErrInvalidConfig", herr.Code)
	require.Equal(t, zapcore.DebugLevel, log.GetLevel())
}

func TestServe(t *testing.T) {
	s := newTestServer(t)
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/v1/status", port))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"run_id": "run-1"`)

	cancel()
	require.NoError(t, <-errCh)
}

func TestRunBindFailure(t *testing.T) {
	s := newTestServer(t)
	err := s.Run(context.Background(), "256.0.0.1:0")
	require.Error(t, err)
	require.True(t, cerror.Is(err, cerror.ErrServeHTTP), err)
	require.Equal(t, "DPN:ErrServeHTTP", newHTTPError(err).Code)
	require.Equal(t, 1, cerror.ExitCode(err))
}
