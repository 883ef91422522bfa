package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks strategy runtime performance.
type SystemMetrics struct {
	// Latency histograms
	CallbackLatency *LatencyHistogram
	OrderLatency    *LatencyHistogram
	APILatency      *LatencyHistogram

	// Counters
	ticksProcessed   uint64
	signalsGenerated uint64
	ordersQueued     uint64
	ordersFilled     uint64
	ordersDropped    uint64
	dataUnavailable  uint64
	callbackPanics   uint64
	errorsCount      uint64
	apiRequests      uint64
	apiErrors        uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are recomputed lazily, only after new samples arrive.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CallbackLatency: NewLatencyHistogram(1000),
		OrderLatency:    NewLatencyHistogram(1000),
		APILatency:      NewLatencyHistogram(1000),
		startedAt:       time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncrementTicks()           { atomic.AddUint64(&m.ticksProcessed, 1) }
func (m *SystemMetrics) IncrementSignals()         { atomic.AddUint64(&m.signalsGenerated, 1) }
func (m *SystemMetrics) IncrementOrdersQueued()    { atomic.AddUint64(&m.ordersQueued, 1) }
func (m *SystemMetrics) IncrementOrdersFilled()    { atomic.AddUint64(&m.ordersFilled, 1) }
func (m *SystemMetrics) IncrementOrdersDropped()   { atomic.AddUint64(&m.ordersDropped, 1) }
func (m *SystemMetrics) IncrementDataUnavailable() { atomic.AddUint64(&m.dataUnavailable, 1) }
func (m *SystemMetrics) IncrementErrors()          { atomic.AddUint64(&m.errorsCount, 1) }
func (m *SystemMetrics) IncrementAPI()             { atomic.AddUint64(&m.apiRequests, 1) }
func (m *SystemMetrics) IncrementAPIErrors()       { atomic.AddUint64(&m.apiErrors, 1) }

// ObserveCallback is a schedule observer: it records callback latency and
// counts recovered panics as errors.
func (m *SystemMetrics) ObserveCallback(_ string, took time.Duration, panicked bool) {
	m.CallbackLatency.RecordDuration(took)
	if panicked {
		atomic.AddUint64(&m.callbackPanics, 1)
		m.IncrementErrors()
	}
}

// MetricsSnapshot is a point-in-time view for the API.
type MetricsSnapshot struct {
	CallbackLatency  LatencyStats `json:"callback_latency"`
	OrderLatency     LatencyStats `json:"order_latency"`
	APILatency       LatencyStats `json:"api_latency"`
	TicksProcessed   uint64       `json:"ticks_processed"`
	SignalsGenerated uint64       `json:"signals_generated"`
	OrdersQueued     uint64       `json:"orders_queued"`
	OrdersFilled     uint64       `json:"orders_filled"`
	OrdersDropped    uint64       `json:"orders_dropped"`
	DataUnavailable  uint64       `json:"data_unavailable"`
	CallbackPanics   uint64       `json:"callback_panics"`
	ErrorsCount      uint64       `json:"errors_count"`
	APIRequests      uint64       `json:"api_requests"`
	APIErrors        uint64       `json:"api_errors"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	Uptime           string       `json:"uptime"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		CallbackLatency:  m.CallbackLatency.Stats(),
		OrderLatency:     m.OrderLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		TicksProcessed:   atomic.LoadUint64(&m.ticksProcessed),
		SignalsGenerated: atomic.LoadUint64(&m.signalsGenerated),
		OrdersQueued:     atomic.LoadUint64(&m.ordersQueued),
		OrdersFilled:     atomic.LoadUint64(&m.ordersFilled),
		OrdersDropped:    atomic.LoadUint64(&m.ordersDropped),
		DataUnavailable:  atomic.LoadUint64(&m.dataUnavailable),
		CallbackPanics:   atomic.LoadUint64(&m.callbackPanics),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Uptime:           time.Since(m.startedAt).Truncate(time.Second).String(),
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
