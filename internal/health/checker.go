package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// Status values reported per dependency.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ServingFunc is called whenever overall serving status flips.
type ServingFunc func(serving bool)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// HealthChecker runs periodic dependency probes. A dependency is degraded
// after FailThreshold consecutive failures and healthy again after one
// success.
type HealthChecker struct {
	probes     map[string]Probe
	failCounts map[string]int
	mu         sync.Mutex
	cfg        Config
	serving    bool
	onServing  ServingFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new HealthChecker.
func New(cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &HealthChecker{
		probes:     make(map[string]Probe),
		failCounts: make(map[string]int),
		cfg:        cfg,
		serving:    true,
		logger:     logger,
	}
}

// Register adds a named dependency probe. Call before Start.
func (h *HealthChecker) Register(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// SetServingFunc configures the serving-status callback.
func (h *HealthChecker) SetServingFunc(fn ServingFunc) {
	h.onServing = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every registered dependency concurrently.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]Probe, len(h.probes))
	for n, p := range h.probes {
		probes[n] = p
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := probe(pctx)
			cancel()
			h.record(name, err)
		}(name, probe)
	}
	wg.Wait()

	h.publish()
}

func (h *HealthChecker) record(name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	prev := h.failCounts[name]
	if success {
		h.failCounts[name] = 0
	} else {
		h.failCounts[name]++
	}
	count := h.failCounts[name]
	h.mu.Unlock()

	switch {
	case success && prev >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case !success && count == h.cfg.FailThreshold:
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	case !success:
		h.logger.Debug("health: probe failed", zap.String("dependency", name), zap.Error(err))
	}
}

// publish recomputes overall status and notifies on change.
func (h *HealthChecker) publish() {
	h.mu.Lock()
	serving := true
	for _, c := range h.failCounts {
		if c >= h.cfg.FailThreshold {
			serving = false
			break
		}
	}
	changed := serving != h.serving
	h.serving = serving
	h.mu.Unlock()

	if changed && h.onServing != nil {
		h.onServing(serving)
	}
}

// Statuses returns the current status of every registered dependency.
func (h *HealthChecker) Statuses() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.probes))
	for name := range h.probes {
		if h.failCounts[name] >= h.cfg.FailThreshold {
			out[name] = StatusDegraded
		} else {
			out[name] = StatusHealthy
		}
	}
	return out
}

// Serving reports whether every dependency is healthy.
func (h *HealthChecker) Serving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serving
}
