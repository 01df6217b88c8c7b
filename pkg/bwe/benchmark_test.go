// Package bwe benchmarks for allocation verification.
//
// These benchmarks verify that steady-state packet processing allocates
// minimally, keeping the hot path (OnPacket -> InterArrivalDelta ->
// TrendlineEstimator -> AimdRateControl) free of needless garbage.
//
// How to run:
//
//	go test -bench=ZeroAlloc -benchmem ./pkg/bwe/...
package bwe

import (
	"testing"
	"time"

	"github.com/thesyncim/bwe/pkg/bwe/internal"
)

// benchResult is a package-level variable to prevent compiler optimizations
// from eliminating benchmark loops that produce unused results.
var benchResult int64

// benchUsage is a package-level variable for BandwidthUsage results.
var benchUsage BandwidthUsage

// BenchmarkBandwidthEstimator_OnPacket_ZeroAlloc benchmarks the main OnPacket
// method of BandwidthEstimator for steady-state allocations.
func BenchmarkBandwidthEstimator_OnPacket_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	config := DefaultBandwidthEstimatorConfig()
	clock := internal.NewMockClock(time.Now())
	estimator := NewBandwidthEstimator(config, clock)

	sendTime := uint32(0)
	for i := 0; i < 1000; i++ {
		pkt := PacketInfo{
			ArrivalTime: clock.Now(),
			SendTime:    sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		estimator.OnPacket(pkt)
		sendTime += 262 // ~1ms in abs-send-time units
		clock.Advance(time.Millisecond)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		pkt := PacketInfo{
			ArrivalTime: clock.Now(),
			SendTime:    sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		benchResult = estimator.OnPacket(pkt)
		sendTime += 262
		clock.Advance(time.Millisecond)
	}
}

// BenchmarkDelayEstimator_OnPacket_ZeroAlloc benchmarks the delay estimator
// component (InterArrivalDelta + TrendlineEstimator) in isolation.
func BenchmarkDelayEstimator_OnPacket_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	config := DefaultDelayEstimatorConfig()
	clock := internal.NewMockClock(time.Now())
	estimator := NewDelayEstimator(config, clock)

	sendTime := uint32(0)
	for i := 0; i < 1000; i++ {
		pkt := PacketInfo{
			ArrivalTime: clock.Now(),
			SendTime:    sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		estimator.OnPacket(pkt)
		sendTime += 262
		clock.Advance(time.Millisecond)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		pkt := PacketInfo{
			ArrivalTime: clock.Now(),
			SendTime:    sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		benchUsage = estimator.OnPacket(pkt)
		sendTime += 262
		clock.Advance(time.Millisecond)
	}
}

// BenchmarkRateStats_Update_ZeroAlloc benchmarks the rate statistics sliding
// window update for steady-state allocations.
func BenchmarkRateStats_Update_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	config := DefaultRateStatsConfig()
	stats := NewRateStats(config)

	now := time.Now()
	for i := 0; i < 1000; i++ {
		stats.Update(1200, now)
		now = now.Add(time.Millisecond)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		stats.Update(1200, now)
		now = now.Add(time.Millisecond)
	}
}

// BenchmarkAimdRateControl_Update_ZeroAlloc benchmarks the AIMD rate
// controller update for steady-state allocations.
func BenchmarkAimdRateControl_Update_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	config := DefaultAimdRateControlConfig()
	controller := NewAimdRateControl(config)

	now := TimestampFromMillis(0)
	throughput := DataRateFromBitsPerSec(1_000_000)

	// Warmup
	for i := 0; i < 100; i++ {
		controller.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &throughput}, now)
		now = now.Add(TimeDeltaFromMillis(100))
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		// Alternate between signals to exercise all code paths.
		signal := BandwidthUsage(i % 3)
		result := controller.Update(RateControlInput{BwState: signal, EstimatedThroughput: &throughput}, now)
		benchResult = result.Bps()
		now = now.Add(TimeDeltaFromMillis(100))
	}
}

// BenchmarkTrendlineEstimator_Update_ZeroAlloc benchmarks the trendline
// estimator's slope-fit and threshold classification for steady-state
// allocations.
func BenchmarkTrendlineEstimator_Update_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	estimator := NewTrendlineEstimator()

	now := 0.0
	for i := 0; i < 1000; i++ {
		estimator.Update(float64(i%10)*0.1, 20, now, true)
		now += 20
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		benchUsage = estimator.Update(float64(i%10)*0.1, 20, now, true)
		now += 20
	}
}

// BenchmarkInterArrivalDelta_ComputeDeltas_ZeroAlloc benchmarks the burst
// grouper for steady-state allocations.
func BenchmarkInterArrivalDelta_ComputeDeltas_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	ia := NewInterArrivalDelta()
	size := DataSizeFromBytes(1200)

	sendMs := int64(0)
	for i := 0; i < 1000; i++ {
		t := TimestampFromMillis(sendMs)
		ia.ComputeDeltas(t, t, t, size)
		sendMs++
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		t := TimestampFromMillis(sendMs)
		ia.ComputeDeltas(t, t, t, size)
		sendMs++
	}
}
