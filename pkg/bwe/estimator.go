// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import (
	"time"

	"github.com/thesyncim/bwe/pkg/bwe/internal"
)

// DelayEstimatorConfig holds configuration for the delay-based bandwidth
// estimator. Zero-value fields fall back to the trendline's own defaults.
type DelayEstimatorConfig struct {
	// WindowSize is the number of smoothed-delay samples the trendline
	// keeps in its sliding regression window. 0 uses the default of 20.
	WindowSize int

	// SmoothingCoef is the exponential smoothing coefficient applied to
	// the accumulated delay before it enters the regression window. 0
	// uses the default of 0.9.
	SmoothingCoef float64

	// ThresholdGain scales the fitted slope before it is compared against
	// the adaptive threshold. 0 uses the default of 4.0.
	ThresholdGain float64

	// EnableSort keeps the history window ordered by arrival time,
	// tolerating the rare packet that is reordered within a group.
	EnableSort bool

	// EnableCap bounds the fitted slope using the minimum raw delay seen
	// at the edges of the window.
	EnableCap bool

	// BeginningPackets and EndPackets size the edges capTrend inspects.
	// 0 uses the default of 7 on both ends.
	BeginningPackets int
	EndPackets       int

	// Predictor, if set, is consulted on every Update call, including
	// ones where no new group delta was available.
	Predictor NetworkStatePredictor
}

// DefaultDelayEstimatorConfig returns the trendline's built-in defaults.
func DefaultDelayEstimatorConfig() DelayEstimatorConfig {
	return DelayEstimatorConfig{
		WindowSize:       trendlineDefaultWindowSize,
		SmoothingCoef:    trendlineSmoothingCoef,
		ThresholdGain:    trendlineThresholdGain,
		BeginningPackets: defaultBeginningPackets,
		EndPackets:       defaultEndPackets,
	}
}

// DelayEstimator orchestrates the complete delay-based bandwidth estimation
// pipeline. It combines the InterArrivalDelta burst grouper, which turns raw
// per-packet timing into inter-group deltas, with the TrendlineEstimator,
// which turns those deltas into a BandwidthUsage classification.
//
// DelayEstimator owns no clock of its own for the packet timeline: the wall
// clock carried on each PacketInfo is converted to a Timestamp relative to
// the first packet observed, and the abs-send-time field is unwrapped
// against the same epoch via an AbsSendTimeUnwrapper.
type DelayEstimator struct {
	config        DelayEstimatorConfig
	clock         internal.Clock
	interarrival  *InterArrivalDelta
	trendline     *TrendlineEstimator
	sendUnwrapper *AbsSendTimeUnwrapper

	epoch     time.Time
	haveEpoch bool
}

// NewDelayEstimator creates a new DelayEstimator with the given
// configuration. If clock is nil, a default MonotonicClock is used.
func NewDelayEstimator(config DelayEstimatorConfig, clock internal.Clock) *DelayEstimator {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}

	trendline := NewTrendlineEstimator()
	if config.WindowSize >= 2 {
		trendline.WindowSize = config.WindowSize
	}
	if config.SmoothingCoef > 0 {
		trendline.SmoothingCoef = config.SmoothingCoef
	}
	if config.ThresholdGain > 0 {
		trendline.ThresholdGain = config.ThresholdGain
	}
	if config.BeginningPackets > 0 {
		trendline.BeginningPackets = config.BeginningPackets
	}
	if config.EndPackets > 0 {
		trendline.EndPackets = config.EndPackets
	}
	trendline.EnableSort = config.EnableSort
	trendline.EnableCap = config.EnableCap
	trendline.Predictor = config.Predictor

	return &DelayEstimator{
		config:        config,
		clock:         clock,
		interarrival:  NewInterArrivalDelta(),
		trendline:     trendline,
		sendUnwrapper: NewAbsSendTimeUnwrapper(),
	}
}

// toTimestamp converts a wall-clock reading to a Timestamp relative to the
// first packet this estimator observed.
func (e *DelayEstimator) toTimestamp(now time.Time) Timestamp {
	if !e.haveEpoch {
		e.epoch = now
		e.haveEpoch = true
	}
	return TimestampFromMicros(now.Sub(e.epoch).Microseconds())
}

// OnPacket processes a received packet and returns the current bandwidth
// usage state.
//
// The pipeline:
//  1. Unwraps the packet's abs-send-time into an absolute send Timestamp.
//  2. Folds the packet into the burst grouper; a completed group yields
//     inter-group send/arrival/size deltas.
//  3. Feeds those deltas (or, absent a completed group, only the send and
//     arrival times) into the trendline estimator.
func (e *DelayEstimator) OnPacket(pkt PacketInfo) BandwidthUsage {
	arrival := e.toTimestamp(pkt.ArrivalTime)
	send := e.sendUnwrapper.Unwrap(pkt.SendTime)
	size := DataSizeFromBytes(int64(pkt.Size))

	// The packet's own arrival instant doubles as the system-time
	// reading: both come from the same monotonic clock reading supplied
	// by the caller.
	sendDelta, arrivalDelta, _, ok := e.interarrival.ComputeDeltas(send, arrival, arrival, size)
	sendMs := float64(send.Micros()) / 1000.0
	arrivalMs := float64(arrival.Micros()) / 1000.0
	if !ok {
		return e.trendline.Update(0, 0, sendMs, arrivalMs, false)
	}

	recvDeltaMs := float64(arrivalDelta.Micros()) / 1000.0
	sendDeltaMs := float64(sendDelta.Micros()) / 1000.0
	return e.trendline.Update(recvDeltaMs, sendDeltaMs, sendMs, arrivalMs, true)
}

// State returns the current bandwidth usage state without processing a
// packet.
func (e *DelayEstimator) State() BandwidthUsage {
	return e.trendline.State()
}

// Threshold returns the trendline's current adaptive threshold, in ms.
func (e *DelayEstimator) Threshold() float64 {
	return e.trendline.Threshold()
}

// Reset resets all components to their initial state. Call this when
// switching streams or after extended silence.
func (e *DelayEstimator) Reset() {
	e.interarrival.Reset()
	e.trendline.Reset()
	e.sendUnwrapper = NewAbsSendTimeUnwrapper()
	e.haveEpoch = false
}
