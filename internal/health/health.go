package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateDisabled     = "disabled"
)

// Pinger 可探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker 通过连接状态判断连通性的依赖（如 NATS）
type ConnChecker interface {
	IsConnected() bool
}

// StatsProvider 后台组件运行统计（如邀请清理调度器）
type StatsProvider interface {
	Stats() map[string]any
}

// Status 健康状态
type Status struct {
	NATS      string         `json:"nats"`
	Redis     string         `json:"redis"`
	Database  string         `json:"database"`
	Scheduler map[string]any `json:"scheduler,omitempty"`
}

// Healthy 已启用的依赖全部连通
func (s *Status) Healthy() bool {
	for _, state := range []string{s.NATS, s.Redis, s.Database} {
		if state == StateDisconnected {
			return false
		}
	}
	return true
}

// Checker 健康检查器，未启用的依赖传 nil
type Checker struct {
	nc        ConnChecker
	redis     Pinger
	db        Pinger
	scheduler StatsProvider
	timeout   time.Duration
}

// NewChecker 创建健康检查器
func NewChecker(nc ConnChecker, redis Pinger, db Pinger) *Checker {
	return &Checker{
		nc:      nc,
		redis:   redis,
		db:      db,
		timeout: 2 * time.Second,
	}
}

// WithScheduler 在健康状态中附带调度器统计
func (h *Checker) WithScheduler(p StatsProvider) *Checker {
	h.scheduler = p
	return h
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		NATS:     StateDisabled,
		Redis:    h.ping(ctx, h.redis),
		Database: h.ping(ctx, h.db),
	}

	if h.nc != nil {
		if h.nc.IsConnected() {
			status.NATS = StateConnected
		} else {
			status.NATS = StateDisconnected
		}
	}
	if h.scheduler != nil {
		status.Scheduler = h.scheduler.Stats()
	}

	return status
}

func (h *Checker) ping(ctx context.Context, p Pinger) string {
	if p == nil {
		return StateDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return StateDisconnected
	}
	return StateConnected
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
