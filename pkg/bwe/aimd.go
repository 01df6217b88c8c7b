// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import "math"

// RateControlState is the AIMD state machine's current mode.
type RateControlState int

const (
	// RateHold means the controller is not actively adjusting the
	// bitrate; it is the initial state and the state the controller
	// always returns to immediately after a Decrease step.
	RateHold RateControlState = iota
	// RateIncrease means the controller is probing upward.
	RateIncrease
	// RateDecrease means the controller is reacting to an over-use
	// signal.
	RateDecrease
)

// String implements fmt.Stringer.
func (s RateControlState) String() string {
	switch s {
	case RateHold:
		return "Hold"
	case RateIncrease:
		return "Increase"
	case RateDecrease:
		return "Decrease"
	default:
		return "Unknown"
	}
}

const (
	defaultMinConfiguredBitrateBps = 5_000
	defaultMaxConfiguredBitrateBps = 30_000_000
	defaultBeta                    = 0.85
	defaultRttMs                   = 200

	initializationTimeUs = 5_000_000

	feedbackIntervalMinMs = 200
	feedbackIntervalMaxMs = 1000

	reductionIntervalMinMs = 10
	reductionIntervalMaxMs = 200

	expectedPeriodDefaultSeconds = 3
	expectedPeriodMinSeconds     = 2
	expectedPeriodMaxSeconds     = 50
)

// NetworkStateEstimate is an optional, caller-supplied estimate of the
// network path's capacity, typically produced by a collaborator outside
// this core (e.g. a probe-based bandwidth estimator). Only the lower/upper
// capacity fields affect the controller's behavior; the remaining fields
// are carried for callers that want to log or forward them.
type NetworkStateEstimate struct {
	Confidence          float64
	UpdateTime          Timestamp
	LastReceiveTime      Timestamp
	LastSendTime         Timestamp
	LinkCapacity         DataRate
	LinkCapacityLower    DataRate
	LinkCapacityUpper    DataRate
	PreLinkBufferDelay   TimeDelta
	PostLinkBufferDelay  TimeDelta
	PropagationDelay     TimeDelta
}

// RateControlInput is the per-update input to the AIMD controller: the
// delay-based classifier's verdict plus an optional measured throughput.
type RateControlInput struct {
	BwState              BandwidthUsage
	EstimatedThroughput  *DataRate
}

// AimdRateControlConfig holds the constructor-time options enumerated in
// the external interface contract.
type AimdRateControlConfig struct {
	// Beta is the multiplicative-decrease factor and lower-bound scaling
	// factor. Default 0.85.
	Beta float64
	// NoBitrateIncreaseInAlr forbids delay-based increase while in ALR,
	// send-side only. Default false.
	NoBitrateIncreaseInAlr bool
	// SubtractAdditionalBackoffTerm subtracts 5 kbps on each decrease
	// (when the decrease target exceeds 5 kbps). Default true.
	SubtractAdditionalBackoffTerm bool
	// DisableEstimateBoundedIncrease ignores the network-state upper
	// bound entirely. Default false.
	DisableEstimateBoundedIncrease bool
	// UseCurrentEstimateAsMinUpperBound never clamps below the current
	// bitrate due to a low network-state upper bound. Default true.
	UseCurrentEstimateAsMinUpperBound bool
	// SendSide marks this controller as running on the sender (required
	// for NoBitrateIncreaseInAlr to take effect).
	SendSide bool
	// MinBitrate is the hard floor. Default 5 kbps.
	MinBitrate DataRate
	// MaxBitrate is the hard ceiling. Default 30 Mbps.
	MaxBitrate DataRate
}

// DefaultAimdRateControlConfig returns the spec's documented defaults.
func DefaultAimdRateControlConfig() AimdRateControlConfig {
	return AimdRateControlConfig{
		Beta:                              defaultBeta,
		SubtractAdditionalBackoffTerm:     true,
		UseCurrentEstimateAsMinUpperBound: true,
		MinBitrate:                        DataRateFromBitsPerSec(defaultMinConfiguredBitrateBps),
		MaxBitrate:                        DataRateFromBitsPerSec(defaultMaxConfiguredBitrateBps),
	}
}

// AimdRateControl is the three-state (Hold/Increase/Decrease) finite state
// machine that turns a stream of BandwidthUsage verdicts into a target send
// bitrate, using additive increase, multiplicative decrease, an internal
// link-capacity anchor, and an optional externally-supplied network-state
// clamp. Each instance is single-owner: all public methods are synchronous
// and driven by explicit Timestamp values passed by the caller.
type AimdRateControl struct {
	config AimdRateControlConfig

	currentBitrate       DataRate
	minConfiguredBitrate DataRate
	maxConfiguredBitrate DataRate

	latestEstimatedThroughput DataRate

	rateControlState RateControlState

	timeLastBitrateChange       Timestamp
	timeLastBitrateDecrease     Timestamp
	timeFirstThroughputEstimate Timestamp

	bitrateIsInitialized bool
	rtt                  TimeDelta

	inAlr bool

	lastDecreaseAmount *DataRate
	networkEstimate    *NetworkStateEstimate

	linkCapacity *LinkCapacityEstimator
}

// NewAimdRateControl creates a controller in its initial Hold state, with
// no bitrate configured yet (bitrate_is_initialized = false).
func NewAimdRateControl(config AimdRateControlConfig) *AimdRateControl {
	if config.Beta <= 0 || config.Beta >= 1 {
		config.Beta = defaultBeta
	}
	if config.MinBitrate.IsZero() {
		config.MinBitrate = DataRateFromBitsPerSec(defaultMinConfiguredBitrateBps)
	}
	if config.MaxBitrate.IsZero() {
		config.MaxBitrate = DataRateFromBitsPerSec(defaultMaxConfiguredBitrateBps)
	}

	return &AimdRateControl{
		config:                      config,
		currentBitrate:              config.MinBitrate,
		minConfiguredBitrate:        config.MinBitrate,
		maxConfiguredBitrate:        config.MaxBitrate,
		rateControlState:            RateHold,
		timeLastBitrateChange:       MinusInfinityTimestamp(),
		timeLastBitrateDecrease:     MinusInfinityTimestamp(),
		timeFirstThroughputEstimate: MinusInfinityTimestamp(),
		rtt:                         TimeDeltaFromMillis(defaultRttMs),
		linkCapacity:                NewLinkCapacityEstimator(),
	}
}

// SetStartBitrate sets current_bitrate directly and marks the controller
// initialized.
func (a *AimdRateControl) SetStartBitrate(r DataRate) {
	a.currentBitrate = r
	a.latestEstimatedThroughput = r
	a.bitrateIsInitialized = true
}

// SetMinBitrate updates the configured floor. Per the spec's open
// question, this literally lowers current_bitrate when a higher floor is
// supplied (current = min(new_min, current)) — preserved as-is, not fixed.
func (a *AimdRateControl) SetMinBitrate(r DataRate) {
	a.minConfiguredBitrate = r
	a.currentBitrate = r.Min(a.currentBitrate)
}

// SetEstimate installs an externally-measured bitrate, marking the
// controller initialized and recording a decrease timestamp if it lowers
// current_bitrate.
func (a *AimdRateControl) SetEstimate(r DataRate, t Timestamp) {
	a.bitrateIsInitialized = true
	newRate := a.clampBitrate(r)
	if newRate.Less(a.currentBitrate) {
		a.timeLastBitrateDecrease = t
	}
	a.currentBitrate = newRate
	a.timeLastBitrateChange = t
}

// SetRtt updates the round-trip time used by the increase calculations.
func (a *AimdRateControl) SetRtt(d TimeDelta) { a.rtt = d }

// SetInApplicationLimitedRegion sets or clears the ALR flag.
func (a *AimdRateControl) SetInApplicationLimitedRegion(b bool) { a.inAlr = b }

// SetNetworkStateEstimate installs or clears the external network-state
// clamp.
func (a *AimdRateControl) SetNetworkStateEstimate(ns *NetworkStateEstimate) { a.networkEstimate = ns }

// LatestEstimate returns current_bitrate.
func (a *AimdRateControl) LatestEstimate() DataRate { return a.currentBitrate }

// Update drives the FSM with one classifier verdict and returns the
// resulting current_bitrate.
func (a *AimdRateControl) Update(input RateControlInput, t Timestamp) DataRate {
	if input.EstimatedThroughput != nil {
		a.latestEstimatedThroughput = *input.EstimatedThroughput
	}

	if !a.bitrateIsInitialized {
		if a.timeFirstThroughputEstimate.IsMinusInfinity() {
			if input.EstimatedThroughput != nil {
				a.timeFirstThroughputEstimate = t
			}
		} else if t.Diff(a.timeFirstThroughputEstimate).Micros() >= initializationTimeUs && input.EstimatedThroughput != nil {
			a.currentBitrate = a.clampBitrate(*input.EstimatedThroughput)
			a.bitrateIsInitialized = true
		}
	}

	if !a.bitrateIsInitialized && input.BwState != BwOverusing {
		return a.currentBitrate
	}

	a.changeState(input, t)
	return a.currentBitrate
}

// changeState applies the transition table, then runs the Increase or
// Decrease action. A Decrease action always collapses the state back to
// Hold once it completes.
func (a *AimdRateControl) changeState(input RateControlInput, t Timestamp) {
	switch a.rateControlState {
	case RateHold:
		switch input.BwState {
		case BwNormal:
			a.timeLastBitrateChange = t
			a.rateControlState = RateIncrease
		case BwOverusing:
			a.rateControlState = RateDecrease
		case BwUnderusing:
			// stays Hold
		}
	case RateIncrease:
		switch input.BwState {
		case BwNormal:
			// stays Increase
		case BwOverusing:
			a.rateControlState = RateDecrease
		case BwUnderusing:
			a.rateControlState = RateHold
		}
	case RateDecrease:
		switch input.BwState {
		case BwNormal, BwOverusing:
			// stays Decrease
		case BwUnderusing:
			a.rateControlState = RateHold
		}
	}

	switch a.rateControlState {
	case RateIncrease:
		a.rateIncrease(input, t)
	case RateDecrease:
		a.rateDecrease(input, t)
		a.rateControlState = RateHold
		a.timeLastBitrateChange = t
		a.timeLastBitrateDecrease = t
	case RateHold:
		// no-op
	}

	// The clamp against the current network-state bound is re-applied on
	// every call, including a Hold no-op, so a newly-installed bound takes
	// effect immediately rather than waiting for the next Increase/Decrease.
	a.currentBitrate = a.clampBitrate(a.currentBitrate)
}

func (a *AimdRateControl) throughputOrLatest(input RateControlInput) DataRate {
	if input.EstimatedThroughput != nil {
		return *input.EstimatedThroughput
	}
	return a.latestEstimatedThroughput
}

// rateIncrease implements the additive/multiplicative increase branch.
func (a *AimdRateControl) rateIncrease(input RateControlInput, t Timestamp) {
	throughput := a.throughputOrLatest(input)

	if throughput.Greater(a.linkCapacity.UpperBound()) {
		a.linkCapacity.Reset()
	}

	increaseLimit := throughput.Scale(1.5).Add(DataRateFromKilobitsPerSec(10))
	if a.config.SendSide && a.inAlr && a.config.NoBitrateIncreaseInAlr {
		increaseLimit = a.currentBitrate
	}

	if a.currentBitrate.Less(increaseLimit) {
		var newRate DataRate
		if a.linkCapacity.HasEstimate() {
			elapsed := t.Diff(a.timeLastBitrateChange)
			additiveBps := a.nearMaxRateBpsPerSecond() * elapsed.SecondsFloat()
			newRate = a.currentBitrate.Add(DataRateFromBitsPerSec(int64(additiveBps)))
		} else {
			deltaSec := t.Diff(a.timeLastBitrateChange).SecondsFloat()
			if deltaSec > 1 {
				deltaSec = 1
			}
			if deltaSec < 0 {
				deltaSec = 0
			}
			alpha := math.Pow(1.08, deltaSec)
			inc := a.currentBitrate.Scale(alpha - 1)
			if inc.Bps() < 1000 {
				inc = DataRateFromBitsPerSec(1000)
			}
			newRate = a.currentBitrate.Add(inc)
		}
		newRate = newRate.Min(increaseLimit)
		a.currentBitrate = a.clampBitrate(newRate)
	}

	a.timeLastBitrateChange = t
}

// rateDecrease implements the multiplicative decrease branch.
func (a *AimdRateControl) rateDecrease(input RateControlInput, t Timestamp) {
	throughput := a.throughputOrLatest(input)
	beforeDecrease := a.currentBitrate

	newRate := throughput.Scale(a.config.Beta)
	if newRate.Bps() > 5000 && a.config.SubtractAdditionalBackoffTerm {
		newRate = newRate.Sub(DataRateFromKilobitsPerSec(5))
	}
	if newRate.Greater(beforeDecrease) && a.linkCapacity.HasEstimate() {
		newRate = a.linkCapacity.Estimate().Scale(a.config.Beta)
	}

	assigned := newRate.Less(beforeDecrease)
	if assigned {
		a.currentBitrate = a.clampBitrate(newRate)
	}

	if a.bitrateIsInitialized && throughput.Less(beforeDecrease) {
		if assigned {
			delta := beforeDecrease.Sub(a.currentBitrate)
			a.lastDecreaseAmount = &delta
		} else {
			zero := ZeroDataRate()
			a.lastDecreaseAmount = &zero
		}
	}

	if throughput.Less(a.linkCapacity.LowerBound()) {
		a.linkCapacity.Reset()
	}
	a.linkCapacity.OnOveruseDetected(throughput)

	a.bitrateIsInitialized = true
}

// clampBitrate applies the clamp used for every new assignment to
// current_bitrate: network-state upper bound, network-state lower bound
// (only while decreasing), the configured ceiling, then the configured
// floor.
func (a *AimdRateControl) clampBitrate(newRate DataRate) DataRate {
	if a.networkEstimate != nil && !a.config.DisableEstimateBoundedIncrease && a.networkEstimate.LinkCapacityUpper.IsFinite() {
		upper := a.networkEstimate.LinkCapacityUpper
		if a.config.UseCurrentEstimateAsMinUpperBound {
			upper = upper.Max(a.currentBitrate)
		}
		newRate = newRate.Min(upper)
	}
	if a.networkEstimate != nil && a.networkEstimate.LinkCapacityLower.IsFinite() && newRate.Less(a.currentBitrate) {
		floor := a.networkEstimate.LinkCapacityLower.Scale(a.config.Beta)
		newRate = a.currentBitrate.Min(newRate.Max(floor))
	}
	newRate = newRate.Min(a.maxConfiguredBitrate)
	newRate = newRate.Max(a.minConfiguredBitrate)
	return newRate
}

// nearMaxRateBpsPerSecond computes the additive-increase rate and doubles
// as the divisor for the expected-bandwidth-period estimate.
func (a *AimdRateControl) nearMaxRateBpsPerSecond() float64 {
	frameSize := a.currentBitrate.Mul(TimeDeltaFromSeconds(1.0 / 30.0))
	packetsPerFrame := math.Ceil(float64(frameSize.Bytes()) / 1200.0)
	if packetsPerFrame < 1 {
		packetsPerFrame = 1
	}
	avgPacketSize := float64(frameSize.Bytes()) / packetsPerFrame
	responseTimeSec := 2 * (a.rtt.SecondsFloat() + 0.1)
	if responseTimeSec <= 0 {
		return 4000
	}
	rate := avgPacketSize * 8 / responseTimeSec
	if rate < 4000 {
		rate = 4000
	}
	return rate
}

// GetExpectedBandwidthPeriod estimates how long the controller expects to
// take to recover the bitrate lost in the most recent decrease.
func (a *AimdRateControl) GetExpectedBandwidthPeriod() TimeDelta {
	if a.lastDecreaseAmount == nil {
		return TimeDeltaFromSeconds(expectedPeriodDefaultSeconds)
	}
	nearMax := a.nearMaxRateBpsPerSecond()
	periodSeconds := int64(float64(a.lastDecreaseAmount.Bps()) / nearMax)
	if periodSeconds < expectedPeriodMinSeconds {
		periodSeconds = expectedPeriodMinSeconds
	}
	if periodSeconds > expectedPeriodMaxSeconds {
		periodSeconds = expectedPeriodMaxSeconds
	}
	return TimeDeltaFromSeconds(float64(periodSeconds))
}

// GetFeedbackInterval returns the recommended interval between feedback
// reports, scaled inversely with the current bitrate.
func (a *AimdRateControl) GetFeedbackInterval() TimeDelta {
	if a.currentBitrate.IsZero() {
		return TimeDeltaFromMillis(feedbackIntervalMaxMs)
	}
	rate := a.currentBitrate.Scale(0.05)
	interval := DataSizeFromBytes(80).DivRate(rate)
	return interval.Clamp(TimeDeltaFromMillis(feedbackIntervalMinMs), TimeDeltaFromMillis(feedbackIntervalMaxMs))
}

// TimeToReduceFurther reports whether enough time has passed since the
// last bitrate change (or the candidate throughput is low enough) to allow
// a further reduction.
func (a *AimdRateControl) TimeToReduceFurther(t Timestamp, thr DataRate) bool {
	bitrateReductionInterval := a.rtt.Clamp(TimeDeltaFromMillis(reductionIntervalMinMs), TimeDeltaFromMillis(reductionIntervalMaxMs))
	if t.Diff(a.timeLastBitrateChange).Micros() >= bitrateReductionInterval.Micros() {
		return true
	}
	if a.bitrateIsInitialized && thr.Less(a.currentBitrate.Scale(0.5)) {
		return true
	}
	return false
}

// State returns the current FSM state.
func (a *AimdRateControl) State() RateControlState { return a.rateControlState }

// LinkCapacity exposes the internal link-capacity estimator for
// diagnostics and tests.
func (a *AimdRateControl) LinkCapacity() *LinkCapacityEstimator { return a.linkCapacity }
