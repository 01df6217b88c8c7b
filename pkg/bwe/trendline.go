// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import "math"

const (
	trendlineDefaultWindowSize = 20
	trendlineSmoothingCoef     = 0.9
	trendlineThresholdGain     = 4.0
	trendlineMaxNumDeltas      = 60
	trendlineDeltaCap          = 1000
	trendlineOveruseTimeMs     = 10.0

	thresholdInitial     = 12.5
	thresholdMin         = 6.0
	thresholdMax         = 600.0
	thresholdKUp         = 0.0087
	thresholdKDown       = 0.039
	thresholdMaxAdaptMs  = 15.0
	thresholdMaxDeltaMs  = 100.0

	defaultBeginningPackets = 7
	defaultEndPackets       = 7
)

// NetworkStatePredictor is the optional external capability the trendline
// detector defers to for the final hypothesis, per the interface
// polymorphism allowed for this collaborator. It is consulted on every
// Update call, even when the current sample did not carry computed deltas.
type NetworkStatePredictor interface {
	Update(sendTimeMs, arrivalTimeMs float64, state BandwidthUsage) BandwidthUsage
}

// trendlineSample is one entry of the bounded delay-history window.
type trendlineSample struct {
	arrivalTimeMs   float64
	smoothedDelayMs float64
	rawDelayMs      float64
}

// TrendlineEstimator converts a stream of (recv-delta, send-delta,
// arrival-time) samples into a BandwidthUsage classification, by fitting a
// line through a smoothed delay series and comparing its slope against an
// adaptively-moving threshold. It merges what upstream GCC implementations
// usually split into a slope estimator and a separate overuse detector,
// because the two share all of their state.
type TrendlineEstimator struct {
	WindowSize       int
	SmoothingCoef    float64
	ThresholdGain    float64
	EnableSort       bool
	EnableCap        bool
	BeginningPackets int
	EndPackets       int
	CapUncertaintyMs float64

	Predictor NetworkStatePredictor

	history      []trendlineSample
	firstArrival float64
	haveFirst    bool

	accumulatedDelay float64
	smoothedDelay    float64
	numOfDeltas      int

	trend     float64
	prevTrend float64

	threshold      float64
	lastUpdateMs   float64
	haveLastUpdate bool

	timeOverUsing   float64
	haveOverUsing   bool
	overuseCounter  int

	hypothesis BandwidthUsage
}

// NewTrendlineEstimator creates a detector with the spec's default
// constants: a 20-sample window, smoothing coefficient 0.9, threshold gain
// 4.0, asymmetric adaptive-threshold coefficients, and slope capping
// disabled.
func NewTrendlineEstimator() *TrendlineEstimator {
	return &TrendlineEstimator{
		WindowSize:       trendlineDefaultWindowSize,
		SmoothingCoef:    trendlineSmoothingCoef,
		ThresholdGain:    trendlineThresholdGain,
		BeginningPackets: defaultBeginningPackets,
		EndPackets:       defaultEndPackets,
		threshold:        thresholdInitial,
		hypothesis:       BwNormal,
	}
}

// State returns the last published hypothesis.
func (t *TrendlineEstimator) State() BandwidthUsage { return t.hypothesis }

// Threshold returns the current adaptive threshold, in ms.
func (t *TrendlineEstimator) Threshold() float64 { return t.threshold }

// Update processes one inter-group delta sample. recvDeltaMs and
// sendDeltaMs are the arrival- and send-time deltas between consecutive
// burst groups (in milliseconds); sendTimeMs and arrivalTimeMs are the
// absolute send and arrival times of the sample, passed through untouched
// to an attached NetworkStatePredictor. If calculatedDeltas is false the
// trendline state is left untouched, but the predictor still runs.
func (t *TrendlineEstimator) Update(recvDeltaMs, sendDeltaMs, sendTimeMs, arrivalTimeMs float64, calculatedDeltas bool) BandwidthUsage {
	if calculatedDeltas {
		t.numOfDeltas++
		if t.numOfDeltas > trendlineDeltaCap {
			t.numOfDeltas = trendlineDeltaCap
		}
		if !t.haveFirst {
			t.firstArrival = arrivalTimeMs
			t.haveFirst = true
		}

		t.accumulatedDelay += recvDeltaMs - sendDeltaMs
		t.smoothedDelay = t.SmoothingCoef*t.smoothedDelay + (1-t.SmoothingCoef)*t.accumulatedDelay

		t.pushSample(trendlineSample{
			arrivalTimeMs:   arrivalTimeMs - t.firstArrival,
			smoothedDelayMs: t.smoothedDelay,
			rawDelayMs:      t.accumulatedDelay,
		})

		if len(t.history) == t.windowSize() {
			if slope, ok := t.linearFitSlope(); ok {
				t.trend = slope
				if t.EnableCap {
					t.trend = t.capTrend(t.trend)
				}
			}
			// else: retain previous trend.
		}

		t.detect(sendDeltaMs, arrivalTimeMs)
	}

	if t.Predictor != nil {
		t.hypothesis = t.Predictor.Update(sendTimeMs, arrivalTimeMs, t.hypothesis)
	}

	return t.hypothesis
}

func (t *TrendlineEstimator) windowSize() int {
	if t.WindowSize < 2 {
		return trendlineDefaultWindowSize
	}
	return t.WindowSize
}

func (t *TrendlineEstimator) pushSample(s trendlineSample) {
	t.history = append(t.history, s)
	if t.EnableSort {
		for i := len(t.history) - 1; i > 0 && t.history[i].arrivalTimeMs < t.history[i-1].arrivalTimeMs; i-- {
			t.history[i], t.history[i-1] = t.history[i-1], t.history[i]
		}
	}
	if len(t.history) > t.windowSize() {
		t.history = t.history[1:]
	}
}

// linearFitSlope computes the ordinary-least-squares slope of
// (arrivalTimeMs, smoothedDelayMs) across the window. It returns ok=false
// when the denominator is zero, in which case the caller must retain the
// previous trend.
func (t *TrendlineEstimator) linearFitSlope() (float64, bool) {
	n := len(t.history)
	if n < 2 {
		return 0, false
	}
	var sumX, sumY float64
	for _, s := range t.history {
		sumX += s.arrivalTimeMs
		sumY += s.smoothedDelayMs
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for _, s := range t.history {
		dx := s.arrivalTimeMs - meanX
		dy := s.smoothedDelayMs - meanY
		num += dx * dy
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// capTrend bounds the slope using the minimum raw delay observed in the
// leading and trailing edges of the window, matching the optional
// slope-capping design described for the trendline component.
func (t *TrendlineEstimator) capTrend(trend float64) float64 {
	n := len(t.history)
	begin := t.BeginningPackets
	if begin <= 0 {
		begin = defaultBeginningPackets
	}
	end := t.EndPackets
	if end <= 0 {
		end = defaultEndPackets
	}
	if begin >= n || end >= n {
		return trend
	}

	minBegin := t.history[0]
	for _, s := range t.history[:begin] {
		if s.rawDelayMs < minBegin.rawDelayMs {
			minBegin = s
		}
	}
	minEnd := t.history[n-end]
	for _, s := range t.history[n-end:] {
		if s.rawDelayMs < minEnd.rawDelayMs {
			minEnd = s
		}
	}

	arrivalDelta := minEnd.arrivalTimeMs - minBegin.arrivalTimeMs
	if arrivalDelta <= 0 {
		return trend
	}
	rawDelta := minEnd.rawDelayMs - minBegin.rawDelayMs
	cap := rawDelta/arrivalDelta + t.CapUncertaintyMs
	if cap > 0 && trend > cap {
		return cap
	}
	return trend
}

// detect runs the adaptive-threshold classifier over the current slope.
func (t *TrendlineEstimator) detect(sendDeltaMs, nowMs float64) {
	if t.numOfDeltas < 2 {
		t.hypothesis = BwNormal
		return
	}

	numSamples := float64(t.numOfDeltas)
	if numSamples > trendlineMaxNumDeltas {
		numSamples = trendlineMaxNumDeltas
	}
	modifiedTrend := numSamples * t.trend * t.ThresholdGain

	switch {
	case modifiedTrend > t.threshold:
		if !t.haveOverUsing {
			t.timeOverUsing = sendDeltaMs / 2
			t.haveOverUsing = true
		} else {
			t.timeOverUsing += sendDeltaMs
		}
		t.overuseCounter++
		if t.timeOverUsing > trendlineOveruseTimeMs && t.overuseCounter > 1 && t.trend >= t.prevTrend {
			t.timeOverUsing = 0
			t.haveOverUsing = false
			t.overuseCounter = 0
			t.hypothesis = BwOverusing
		}
	case modifiedTrend < -t.threshold:
		t.timeOverUsing = 0
		t.haveOverUsing = false
		t.overuseCounter = 0
		t.hypothesis = BwUnderusing
	default:
		t.timeOverUsing = 0
		t.haveOverUsing = false
		t.overuseCounter = 0
		t.hypothesis = BwNormal
	}

	t.prevTrend = t.trend
	t.updateThreshold(modifiedTrend, nowMs)
}

// updateThreshold adapts the threshold toward |modifiedTrend| using
// asymmetric coefficients, rejecting spikes that exceed the current
// threshold by more than thresholdMaxAdaptMs.
func (t *TrendlineEstimator) updateThreshold(modifiedTrend, nowMs float64) {
	if !t.haveLastUpdate {
		t.lastUpdateMs = nowMs
		t.haveLastUpdate = true
	}

	absTrend := math.Abs(modifiedTrend)
	if absTrend > t.threshold+thresholdMaxAdaptMs {
		t.lastUpdateMs = nowMs
		return
	}

	k := thresholdKUp
	if absTrend < t.threshold {
		k = thresholdKDown
	}

	deltaMs := nowMs - t.lastUpdateMs
	if deltaMs > thresholdMaxDeltaMs {
		deltaMs = thresholdMaxDeltaMs
	}

	t.threshold += k * (absTrend - t.threshold) * deltaMs
	if t.threshold < thresholdMin {
		t.threshold = thresholdMin
	}
	if t.threshold > thresholdMax {
		t.threshold = thresholdMax
	}
	t.lastUpdateMs = nowMs
}

// Reset returns the estimator to its initial state.
func (t *TrendlineEstimator) Reset() {
	windowSize, smoothing, gain := t.WindowSize, t.SmoothingCoef, t.ThresholdGain
	enableSort, enableCap := t.EnableSort, t.EnableCap
	begin, end, capUncertainty := t.BeginningPackets, t.EndPackets, t.CapUncertaintyMs
	predictor := t.Predictor

	*t = TrendlineEstimator{
		WindowSize:       windowSize,
		SmoothingCoef:    smoothing,
		ThresholdGain:    gain,
		EnableSort:       enableSort,
		EnableCap:        enableCap,
		BeginningPackets: begin,
		EndPackets:       end,
		CapUncertaintyMs: capUncertainty,
		Predictor:        predictor,
		threshold:        thresholdInitial,
		hypothesis:       BwNormal,
	}
}
