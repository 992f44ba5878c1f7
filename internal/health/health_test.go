package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/task"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type connState bool

func (c connState) IsConnected() bool { return bool(c) }

func ok(context.Context) error { return nil }

func TestChecker_AllConnected(t *testing.T) {
	h := NewChecker(connState(true), pingFunc(ok), pingFunc(ok))

	status := h.Check(context.Background())
	assert.Equal(t, &Status{NATS: StateConnected, Redis: StateConnected, Database: StateConnected}, status)
	assert.True(t, h.IsHealthy(context.Background()))
}

func TestChecker_DisabledDependencies(t *testing.T) {
	h := NewChecker(nil, nil, pingFunc(ok))

	status := h.Check(context.Background())
	assert.Equal(t, StateDisabled, status.NATS)
	assert.Equal(t, StateDisabled, status.Redis)
	assert.True(t, status.Healthy())
}

func TestChecker_ServeHTTP(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("refused") })
	h := NewChecker(connState(false), nil, down)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, StateDisconnected, status.NATS)
	assert.Equal(t, StateDisconnected, status.Database)
	assert.Equal(t, StateDisabled, status.Redis)
}

func TestChecker_SchedulerStats(t *testing.T) {
	scheduler := task.NewScheduler(2, 10*time.Millisecond)
	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	h := NewChecker(nil, nil, pingFunc(ok)).WithScheduler(scheduler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.Scheduler)
	assert.Equal(t, true, status.Scheduler["running"])
	assert.Equal(t, float64(2), status.Scheduler["workerCount"])

	// 未配置调度器时不输出该字段
	plain := NewChecker(nil, nil, pingFunc(ok))
	assert.Nil(t, plain.Check(context.Background()).Scheduler)
}
