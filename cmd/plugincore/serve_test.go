// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugincore/internal/observability"
)

type mockObservabilityServer struct {
	mock.Mock
	metrics *observability.Metrics
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	args := m.Called()
	ch, _ := args.Get(0).(chan error)
	if ch == nil {
		return nil, args.Error(1)
	}
	return ch, args.Error(1)
}

func (m *mockObservabilityServer) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockObservabilityServer) Addr() string {
	return "mock"
}

func (m *mockObservabilityServer) Metrics() *observability.Metrics {
	return m.metrics
}

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
}

// runServeCmd runs serve with deps until the host is ready, calls during,
// then cancels and waits for serve to return.
func runServeCmd(t *testing.T, deps *ServeDeps, during func(), args ...string) (string, error) {
	t.Helper()
	root, _, stderr := newTestRoot(t, append([]string{"serve"}, args...)...)
	for _, c := range root.Commands() {
		if c.Name() == "serve" {
			root.RemoveCommand(c)
		}
	}

	ready := make(chan struct{})
	deps.Ready = func() { close(ready) }
	deps.StartBackoff = fastBackoff
	root.AddCommand(NewServeCmd(deps))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	select {
	case <-ready:
		if during != nil {
			during()
		}
		cancel()
	case err := <-done:
		return stderr.String(), err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not become ready")
	}

	select {
	case err := <-done:
		return stderr.String(), err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
	return "", nil
}

func TestServe_EndToEnd(t *testing.T) {
	var srv *observability.Server
	deps := &ServeDeps{
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker, plugins observability.PluginLister) ObservabilityServer {
			srv = observability.NewServer(addr, ready, observability.WithPluginLister(plugins))
			return srv
		},
	}

	var ids []string
	var readiness int
	logs, err := runServeCmd(t, deps, func() {
		resp, err := http.Get("http://" + srv.Addr() + "/plugins")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))

		ready, err := http.Get("http://" + srv.Addr() + "/healthz/readiness")
		require.NoError(t, err)
		_ = ready.Body.Close()
		readiness = ready.StatusCode
	}, "--plugins-dir", examplePlugins, "--metrics-addr", "127.0.0.1:0", "--log-format", "text")

	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, ids)
	assert.Equal(t, http.StatusOK, readiness)
	assert.Contains(t, logs, "echo host.started version=dev #1")
	assert.Contains(t, logs, "echo host.stopping version=dev #2")
	assert.Contains(t, logs, "echo plugin unloading after 2 events")
}

func TestServe_WithoutMetrics(t *testing.T) {
	deps := &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, observability.PluginLister) ObservabilityServer {
			t.Error("observability server must not be created")
			return nil
		},
	}

	logs, err := runServeCmd(t, deps, nil, "--plugins-dir", examplePlugins, "--metrics-addr", "")
	require.NoError(t, err)
	assert.Contains(t, logs, "host ready")
}

func TestServe_RetriesListenFailure(t *testing.T) {
	srv := &mockObservabilityServer{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	listenErr := oops.Code(observability.CodeListenFailed).Errorf("address in use")
	srv.On("Start").Return(nil, listenErr).Once()
	srv.On("Start").Return(make(chan error), nil).Once()
	srv.On("Stop", mock.Anything).Return(nil).Once()

	deps := &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, observability.PluginLister) ObservabilityServer {
			return srv
		},
	}

	_, err := runServeCmd(t, deps, nil, "--plugins-dir", t.TempDir())
	require.NoError(t, err)
	srv.AssertExpectations(t)
}

func TestServe_StartFailureIsNotRetried(t *testing.T) {
	srv := &mockObservabilityServer{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	srv.On("Start").Return(nil, oops.Code(observability.CodeAlreadyRunning).Errorf("running")).Once()

	deps := &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, observability.PluginLister) ObservabilityServer {
			return srv
		},
	}

	_, err := runServeCmd(t, deps, nil, "--plugins-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running")
	srv.AssertExpectations(t)
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.NoError(t, ctx.Err())
	})
}
