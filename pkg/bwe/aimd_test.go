package bwe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAimdRateControl_InitialState(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	assert.Equal(t, RateHold, a.State())
	assert.Equal(t, DataRateFromBitsPerSec(defaultMinConfiguredBitrateBps), a.LatestEstimate())
}

func TestAimdRateControl_TransitionTable(t *testing.T) {
	t0 := TimestampFromMillis(0)

	t.Run("Hold+Normal->Increase", func(t *testing.T) {
		a := NewAimdRateControl(DefaultAimdRateControlConfig())
		thr := DataRateFromBitsPerSec(100_000)
		a.SetStartBitrate(thr)
		a.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &thr}, t0)
		assert.Equal(t, RateIncrease, a.State())
	})

	t.Run("Hold+Overusing->Hold after Decrease collapses", func(t *testing.T) {
		a := NewAimdRateControl(DefaultAimdRateControlConfig())
		thr := DataRateFromBitsPerSec(100_000)
		a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &thr}, t0)
		assert.Equal(t, RateHold, a.State(), "a Decrease step always collapses back to Hold")
	})

	t.Run("Hold+Underusing stays Hold", func(t *testing.T) {
		a := NewAimdRateControl(DefaultAimdRateControlConfig())
		thr := DataRateFromBitsPerSec(100_000)
		a.Update(RateControlInput{BwState: BwUnderusing, EstimatedThroughput: &thr}, t0)
		assert.Equal(t, RateHold, a.State())
	})

	t.Run("Increase+Underusing->Hold", func(t *testing.T) {
		a := NewAimdRateControl(DefaultAimdRateControlConfig())
		thr := DataRateFromBitsPerSec(100_000)
		a.SetStartBitrate(thr)
		a.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &thr}, t0)
		assert.Equal(t, RateIncrease, a.State())
		a.Update(RateControlInput{BwState: BwUnderusing, EstimatedThroughput: &thr}, t0.Add(TimeDeltaFromMillis(100)))
		assert.Equal(t, RateHold, a.State())
	})

	t.Run("Increase+Overusing->Hold via Decrease", func(t *testing.T) {
		a := NewAimdRateControl(DefaultAimdRateControlConfig())
		thr := DataRateFromBitsPerSec(100_000)
		a.SetStartBitrate(thr)
		a.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &thr}, t0)
		assert.Equal(t, RateIncrease, a.State())
		a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &thr}, t0.Add(TimeDeltaFromMillis(100)))
		assert.Equal(t, RateHold, a.State())
	})
}

func TestAimdRateControl_DecreaseForcesHoldAndStampsDecreaseTime(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	thr := DataRateFromBitsPerSec(100_000)
	at := t0.Add(TimeDeltaFromMillis(500))

	a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &thr}, at)
	assert.Equal(t, RateHold, a.State())
	assert.Equal(t, at.Micros(), a.timeLastBitrateDecrease.Micros())
}

func TestAimdRateControl_BeforeInitializationOnlyOverusingMovesBitrate(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	floor := a.LatestEstimate()

	a.Update(RateControlInput{BwState: BwNormal}, TimestampFromMillis(0))
	assert.Equal(t, floor, a.LatestEstimate(), "Normal with no throughput estimate must not move an uninitialized controller")
	assert.False(t, a.bitrateIsInitialized)

	thr := DataRateFromBitsPerSec(200_000)
	a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &thr}, TimestampFromMillis(100))
	assert.True(t, a.bitrateIsInitialized, "over-use always executes the decrease branch, completing initialization as a side effect")
}

func TestAimdRateControl_ClampRespectsFloorAndCeiling(t *testing.T) {
	config := DefaultAimdRateControlConfig()
	config.MinBitrate = DataRateFromBitsPerSec(10_000)
	config.MaxBitrate = DataRateFromBitsPerSec(50_000)
	a := NewAimdRateControl(config)

	a.SetEstimate(DataRateFromBitsPerSec(1_000), TimestampFromMillis(0))
	assert.Equal(t, int64(10_000), a.LatestEstimate().Bps(), "clamp always enforces min_configured_bitrate last")

	a.SetEstimate(DataRateFromBitsPerSec(100_000), TimestampFromMillis(100))
	assert.Equal(t, int64(50_000), a.LatestEstimate().Bps(), "clamp enforces max_configured_bitrate")
}

func TestAimdRateControl_NetworkEstimateUpperClamp_Scenario8(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)

	a.SetEstimate(DataRateFromBitsPerSec(300_000), t0)
	a.SetNetworkStateEstimate(&NetworkStateEstimate{
		LinkCapacityUpper: DataRateFromBitsPerSec(400_000),
	})
	a.SetEstimate(DataRateFromBitsPerSec(500_000), t0)

	assert.Equal(t, int64(400_000), a.LatestEstimate().Bps())
}

func TestAimdRateControl_NetworkEstimateUpperIgnoredWhenDisabled(t *testing.T) {
	config := DefaultAimdRateControlConfig()
	config.DisableEstimateBoundedIncrease = true
	a := NewAimdRateControl(config)
	t0 := TimestampFromMillis(0)

	a.SetEstimate(DataRateFromBitsPerSec(300_000), t0)
	a.SetNetworkStateEstimate(&NetworkStateEstimate{
		LinkCapacityUpper: DataRateFromBitsPerSec(400_000),
	})
	a.SetEstimate(DataRateFromBitsPerSec(500_000), t0)

	assert.Equal(t, int64(500_000), a.LatestEstimate().Bps(), "disable_estimate_bounded_increase must ignore the upper bound entirely")
}

// TestAimdRateControl_NearMaxRate_Scenario1 through _Scenario3 reproduce the
// seeded near_max_rate_bps_per_second examples.
func TestAimdRateControl_NearMaxRate_Scenario1(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(30_000), t0)
	assert.InDelta(t, 4000.0, a.nearMaxRateBpsPerSecond(), 1e-9)
}

func TestAimdRateControl_NearMaxRate_Scenario2(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(90_000), t0)
	assert.InDelta(t, 5000.0, a.nearMaxRateBpsPerSecond(), 1e-9)
}

func TestAimdRateControl_NearMaxRate_Scenario3(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetRtt(TimeDeltaFromMillis(100))
	a.SetEstimate(DataRateFromBitsPerSec(60_000), t0)
	assert.InDelta(t, 5000.0, a.nearMaxRateBpsPerSecond(), 1e-9)
}

// TestAimdRateControl_ConvergesToAdditiveCap_Scenario4 reproduces the BWE
// capped-by-acked scenario: constant 10 kbps throughput with Normal inputs
// for 20 s converges to 1.5*10kbps + 10kbps = 25 kbps.
func TestAimdRateControl_ConvergesToAdditiveCap_Scenario4(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(10_000), t0)

	throughput := DataRateFromBitsPerSec(10_000)
	now := t0
	for i := 0; i < 200; i++ {
		now = now.Add(TimeDeltaFromMillis(100))
		a.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &throughput}, now)
	}

	assert.Equal(t, int64(25_000), a.LatestEstimate().Bps())
}

// TestAimdRateControl_TypicalDropPeriod_Scenario5 reproduces the seeded
// decrease example and cross-checks near_max_rate and the expected period.
func TestAimdRateControl_TypicalDropPeriod_Scenario5(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(264_000), t0)

	acked := DataRateFromBitsPerSec(int64((216_000.0 + 5_000.0) / 0.85))
	at := t0.Add(TimeDeltaFromMillis(100))
	a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &acked}, at)

	assert.Equal(t, int64(216_000), a.LatestEstimate().Bps())
	assert.InDelta(t, 12_000.0, a.nearMaxRateBpsPerSecond(), 1.0)
	assert.Equal(t, int64(4), a.GetExpectedBandwidthPeriod().Seconds())
}

// TestAimdRateControl_LargeDropPeriodCapped_Scenario6 reproduces the seeded
// large-decrease example: the recovered period saturates at the 50 s
// ceiling.
func TestAimdRateControl_LargeDropPeriodCapped_Scenario6(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(10_010_000), t0)

	acked := DataRateFromBitsPerSec(int64(10_000.0 / 0.85))
	at := t0.Add(TimeDeltaFromMillis(100))
	a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &acked}, at)

	assert.Equal(t, int64(50), a.GetExpectedBandwidthPeriod().Seconds())
}

// TestAimdRateControl_AlrForbidsIncrease_Scenario7 reproduces the ALR-gated
// send-side increase suppression.
func TestAimdRateControl_AlrForbidsIncrease_Scenario7(t *testing.T) {
	config := DefaultAimdRateControlConfig()
	config.NoBitrateIncreaseInAlr = true
	config.SendSide = true
	a := NewAimdRateControl(config)
	a.SetInApplicationLimitedRegion(true)

	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(123_000), t0)

	throughput := DataRateFromBitsPerSec(123_000)
	now := t0
	for i := 0; i < 100; i++ {
		now = now.Add(TimeDeltaFromMillis(100))
		a.Update(RateControlInput{BwState: BwNormal, EstimatedThroughput: &throughput}, now)
	}

	assert.Equal(t, int64(123_000), a.LatestEstimate().Bps())
}

func TestAimdRateControl_NoDecreaseRecordedMeansDefaultPeriod(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	assert.Equal(t, int64(3), a.GetExpectedBandwidthPeriod().Seconds())
}

func TestAimdRateControl_FeedbackIntervalWithinBounds(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())

	low := a.GetFeedbackInterval()
	assert.GreaterOrEqual(t, low.Millis(), int64(feedbackIntervalMinMs))
	assert.LessOrEqual(t, low.Millis(), int64(feedbackIntervalMaxMs))

	a.SetStartBitrate(DataRateFromBitsPerSec(20_000_000))
	high := a.GetFeedbackInterval()
	assert.GreaterOrEqual(t, high.Millis(), int64(feedbackIntervalMinMs))
	assert.LessOrEqual(t, high.Millis(), int64(feedbackIntervalMaxMs))
}

func TestAimdRateControl_FeedbackIntervalMaxedWhenZero(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	a.currentBitrate = ZeroDataRate()
	assert.Equal(t, int64(feedbackIntervalMaxMs), a.GetFeedbackInterval().Millis())
}

func TestAimdRateControl_SetMinBitrateCanLowerCurrent(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	a.SetStartBitrate(DataRateFromBitsPerSec(100_000))

	// Open question preserved literally: a higher floor can still lower
	// current_bitrate via min(new_min, current_bitrate).
	a.SetMinBitrate(DataRateFromBitsPerSec(50_000))
	assert.Equal(t, int64(50_000), a.LatestEstimate().Bps())
}

func TestAimdRateControl_UnderConstantOverusingBitrateDoesNotIncrease(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	t0 := TimestampFromMillis(0)
	a.SetEstimate(DataRateFromBitsPerSec(500_000), t0)

	throughput := DataRateFromBitsPerSec(500_000)
	now := t0
	prev := a.LatestEstimate()
	for i := 0; i < 20; i++ {
		now = now.Add(TimeDeltaFromMillis(100))
		a.Update(RateControlInput{BwState: BwOverusing, EstimatedThroughput: &throughput}, now)
		assert.LessOrEqual(t, a.LatestEstimate().Bps(), prev.Bps())
		prev = a.LatestEstimate()
	}
}

func TestAimdRateControl_LinkCapacityExposed(t *testing.T) {
	a := NewAimdRateControl(DefaultAimdRateControlConfig())
	assert.NotNil(t, a.LinkCapacity())
	assert.False(t, a.LinkCapacity().HasEstimate())
}
