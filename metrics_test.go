package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Add(MetricLoginSuccess, 3)

	if got := m.Value(MetricLoginSuccess); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}
	// counters never get histograms
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter must not carry a histogram")
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("histogram must not appear among counters")
	}
}

func TestMetricsLatencyDisabledHasNoHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricRefreshLatency, time.Millisecond)

	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("expected no histograms without EnableLatencyHistograms")
	}
}

func TestEngineRecordsLatency(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) { b.WithLatencyHistograms(true) })
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "u1", "alice@example.com", "member")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Verify(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken, "u1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	for _, id := range []MetricID{MetricVerifyLatency, MetricRefreshLatency} {
		var total uint64
		for _, v := range snap.Histograms[id] {
			total += v
		}
		if total != 1 {
			t.Fatalf("metric %d: expected one observation, got %d", id, total)
		}
	}
}

func TestEngineMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) { b.WithMetricsEnabled(false) })

	if _, err := env.engine.Login(context.Background(), "u1", "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(env.engine.MetricsSnapshot().Counters) != 0 {
		t.Fatal("disabled metrics must produce an empty snapshot")
	}
}
