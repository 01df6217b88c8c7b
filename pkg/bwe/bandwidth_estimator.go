// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import (
	"time"

	"github.com/thesyncim/bwe/pkg/bwe/internal"
)

// BandwidthEstimatorConfig configures the complete bandwidth estimator.
type BandwidthEstimatorConfig struct {
	// Delay configures the delay-based congestion detector.
	Delay DelayEstimatorConfig

	// RateStats configures incoming rate measurement.
	RateStats RateStatsConfig

	// Aimd configures the AIMD rate controller.
	Aimd AimdRateControlConfig
}

// DefaultBandwidthEstimatorConfig returns default configuration.
func DefaultBandwidthEstimatorConfig() BandwidthEstimatorConfig {
	return BandwidthEstimatorConfig{
		Delay:     DefaultDelayEstimatorConfig(),
		RateStats: DefaultRateStatsConfig(),
		Aimd:      DefaultAimdRateControlConfig(),
	}
}

// BandwidthEstimator is the main entry point for bandwidth estimation. It
// combines:
//   - DelayEstimator for congestion signal detection
//   - RateStats for incoming bitrate measurement
//   - AimdRateControl for AIMD-based bandwidth estimation, including its
//     link capacity estimator
type BandwidthEstimator struct {
	config    BandwidthEstimatorConfig
	clock     internal.Clock
	delay     *DelayEstimator
	rateStats *RateStats
	aimd      *AimdRateControl

	ssrcs map[uint32]struct{}

	rembScheduler *REMBScheduler

	epoch     time.Time
	haveEpoch bool
}

// NewBandwidthEstimator creates a new bandwidth estimator. If clock is nil,
// a default MonotonicClock is used.
func NewBandwidthEstimator(config BandwidthEstimatorConfig, clock internal.Clock) *BandwidthEstimator {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}

	return &BandwidthEstimator{
		config:    config,
		clock:     clock,
		delay:     NewDelayEstimator(config.Delay, clock),
		rateStats: NewRateStats(config.RateStats),
		aimd:      NewAimdRateControl(config.Aimd),
		ssrcs:     make(map[uint32]struct{}),
	}
}

// toTimestamp converts a wall-clock reading to a Timestamp relative to the
// first packet this estimator observed. This runs on the same clock domain
// as the DelayEstimator's own epoch, since both are anchored to the arrival
// time of the very first packet passed to OnPacket.
func (e *BandwidthEstimator) toTimestamp(now time.Time) Timestamp {
	if !e.haveEpoch {
		e.epoch = now
		e.haveEpoch = true
	}
	return TimestampFromMicros(now.Sub(e.epoch).Microseconds())
}

// OnPacket processes a received packet and updates the bandwidth estimate.
// This is the main entry point - call this for every received RTP packet.
// Returns the current bandwidth estimate in bits per second.
func (e *BandwidthEstimator) OnPacket(pkt PacketInfo) int64 {
	e.ssrcs[pkt.SSRC] = struct{}{}
	e.rateStats.Update(int64(pkt.Size), pkt.ArrivalTime)

	state := e.delay.OnPacket(pkt)
	t := e.toTimestamp(pkt.ArrivalTime)

	input := RateControlInput{BwState: state}
	if rate, ok := e.rateStats.Rate(pkt.ArrivalTime); ok {
		throughput := DataRateFromBitsPerSec(rate)
		input.EstimatedThroughput = &throughput
	}

	return e.aimd.Update(input, t).Bps()
}

// GetEstimate returns the current bandwidth estimate in bits per second.
// Call this at any time to get the latest estimate without processing a
// packet.
func (e *BandwidthEstimator) GetEstimate() int64 {
	return e.aimd.LatestEstimate().Bps()
}

// GetSSRCs returns the list of SSRCs seen so far. This is useful for
// building REMB packets.
func (e *BandwidthEstimator) GetSSRCs() []uint32 {
	result := make([]uint32, 0, len(e.ssrcs))
	for ssrc := range e.ssrcs {
		result = append(result, ssrc)
	}
	return result
}

// GetCongestionState returns the current congestion state.
func (e *BandwidthEstimator) GetCongestionState() BandwidthUsage {
	return e.delay.State()
}

// GetRateControlState returns the current AIMD rate control state.
func (e *BandwidthEstimator) GetRateControlState() RateControlState {
	return e.aimd.State()
}

// GetIncomingRate returns the measured incoming bitrate in bits per second.
// Returns (rate, true) if available, (0, false) otherwise.
func (e *BandwidthEstimator) GetIncomingRate() (int64, bool) {
	return e.rateStats.Rate(e.clock.Now())
}

// SetStartBitrate seeds the rate controller's current bitrate before any
// packets have been processed, e.g. from a prior session or a codec's
// initial target.
func (e *BandwidthEstimator) SetStartBitrate(bps int64) {
	e.aimd.SetStartBitrate(DataRateFromBitsPerSec(bps))
}

// SetRtt feeds a fresh round-trip time estimate into the rate controller.
func (e *BandwidthEstimator) SetRtt(rtt time.Duration) {
	e.aimd.SetRtt(TimeDeltaFromMicros(rtt.Microseconds()))
}

// SetInApplicationLimitedRegion toggles the ALR flag, which forbids the
// AIMD controller from increasing past the current bitrate while set and
// both SendSide and NoBitrateIncreaseInAlr are configured.
func (e *BandwidthEstimator) SetInApplicationLimitedRegion(alr bool) {
	e.aimd.SetInApplicationLimitedRegion(alr)
}

// SetNetworkStateEstimate feeds an out-of-band network state estimate (e.g.
// from a sender-side probing controller) into the rate controller's clamp.
func (e *BandwidthEstimator) SetNetworkStateEstimate(estimate *NetworkStateEstimate) {
	e.aimd.SetNetworkStateEstimate(estimate)
}

// SetREMBScheduler attaches a REMBScheduler that MaybeBuildREMB consults to
// decide when a REMB packet is due.
func (e *BandwidthEstimator) SetREMBScheduler(scheduler *REMBScheduler) {
	e.rembScheduler = scheduler
}

// MaybeBuildREMB checks the attached REMBScheduler and, if a REMB is due,
// builds and marshals one covering every SSRC seen so far. Returns
// (nil, false, nil) if no scheduler is attached or none is due yet.
func (e *BandwidthEstimator) MaybeBuildREMB(now time.Time) ([]byte, bool, error) {
	if e.rembScheduler == nil {
		return nil, false, nil
	}
	return e.rembScheduler.MaybeSendREMB(e.GetEstimate(), e.GetSSRCs(), now)
}

// LinkCapacity exposes the AIMD controller's link capacity estimator.
func (e *BandwidthEstimator) LinkCapacity() *LinkCapacityEstimator {
	return e.aimd.LinkCapacity()
}

// Reset resets the estimator to initial state. Call this when switching
// streams or after extended silence.
func (e *BandwidthEstimator) Reset() {
	e.delay.Reset()
	e.rateStats.Reset()
	e.aimd = NewAimdRateControl(e.config.Aimd)
	e.ssrcs = make(map[uint32]struct{})
	e.haveEpoch = false
}
