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

// Package status serves the metrics and the state of a running process
// over HTTP.
package status

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/pingcap/dataflow/pkg/scheduler"
	"github.com/pingcap/dataflow/pkg/version"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Cluster is the part of a scheduler cluster the status server reads.
type Cluster interface {
	Snapshot() []scheduler.Snapshot
	Mapping() *mapper.Mapping
	Stopped() bool
}

// Server is the status server of a dpn process.
type Server struct {
	router  *gin.Engine
	graph   *actor.Graph
	cluster Cluster
	runID   string
	started time.Time
}

// ProcessStatus is the response of /api/v1/status.
type ProcessStatus struct {
	version.Info
	RunID   string        `json:"run_id"`
	Pid     int           `json:"pid"`
	Uptime  string        `json:"uptime"`
	Stopped bool          `json:"stopped"`
	Actors  []ActorStatus `json:"actors"`
}

// ActorStatus is the state of an actor.
type ActorStatus struct {
	Name    string `json:"name"`
	Owner   int    `json:"owner"`
	Unit    int    `json:"unit"`
	Firings int64  `json:"firings"`
	Busy    string `json:"busy"`
}

// SchedulersStatus is the response of /api/v1/schedulers.
type SchedulersStatus struct {
	Schedulers []scheduler.Snapshot `json:"schedulers"`
	Units      []mapper.UnitView    `json:"units"`
	Skewness   float64              `json:"skewness"`
}

// NewServer creates the status server of a cluster running graph.
func NewServer(graph *actor.Graph, cluster Cluster, registry prometheus.Gatherer, runID string) *Server {
	// discard gin default log output
	gin.DefaultWriter = io.Discard
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		graph:   graph,
		cluster: cluster,
		runID:   runID,
		started: time.Now(),
	}
	s.router.Use(gin.Recovery())
	s.router.GET("/api/v1/status", s.handleStatus)
	s.router.GET("/api/v1/schedulers", s.handleSchedulers)
	s.router.POST("/api/v1/log", handleLogLevel)
	s.router.Any("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the http handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return cerror.WrapError(cerror.ErrServeHTTP, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. ln is closed when Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info("status server is running", zap.Stringer("addr", ln.Addr()))

	select {
	case err := <-errCh:
		return cerror.WrapError(cerror.ErrServeHTTP, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown status server failed", zap.Error(err))
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return cerror.WrapError(cerror.ErrServeHTTP, err)
	}
	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	status := ProcessStatus{
		Info:    version.GetInfo(),
		RunID:   s.runID,
		Pid:     os.Getpid(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Stopped: s.cluster.Stopped(),
	}
	for _, a := range s.graph.Actors() {
		stats := a.Stats()
		status.Actors = append(status.Actors, ActorStatus{
			Name:    a.Name,
			Owner:   a.Owner(),
			Unit:    a.Mapping(),
			Firings: stats.Firings,
			Busy:    stats.Busy.String(),
		})
	}
	c.IndentedJSON(http.StatusOK, status)
}

func (s *Server) handleSchedulers(c *gin.Context) {
	mapping := s.cluster.Mapping()
	c.IndentedJSON(http.StatusOK, SchedulersStatus{
		Schedulers: s.cluster.Snapshot(),
		Units:      mapping.Describe(s.graph),
		Skewness:   mapper.Skewness(mapping.Loads(mapper.Weights(s.graph))),
	})
}

type httpError struct {
	Error string `json:"error_msg"`
	Code  string `json:"error_code"`
}

// handleLogLevel sets the log level, the body is a JSON string such as
// "debug".
func handleLogLevel(c *gin.Context) {
	var level string
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, httpError{Error: err.Error()})
		return
	}
	if err := json.Unmarshal(data, &level); err != nil {
		err = cerror.ErrInvalidConfig.GenWithStackByArgs("invalid log level: " + err.Error())
		c.IndentedJSON(http.StatusBadRequest, newHTTPError(err))
		return
	}
	if err := logutil.SetLogLevel(level); err != nil {
		c.IndentedJSON(http.StatusBadRequest, newHTTPError(err))
		return
	}
	c.IndentedJSON(http.StatusOK, struct{}{})
}

func newHTTPError(err error) httpError {
	herr := httpError{Error: err.Error()}
	if rfcErr := cerror.RFCError(err); rfcErr != nil {
		herr.Code = string(rfcErr.RFCCode())
	}
	return herr
}
