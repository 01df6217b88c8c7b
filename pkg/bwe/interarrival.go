// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import "github.com/pion/logging"

// sendTimeGroupLength bounds how much send-time span a single burst group
// may cover before a new group is forced to start, mirroring libwebrtc's
// kTimestampGroupLengthUs.
var sendTimeGroupLength = TimeDeltaFromMillis(5)

// arrivalTimeOffsetThreshold is the maximum allowed arrival/system clock
// divergence between consecutive groups before the grouping state is
// considered stale and reset.
var arrivalTimeOffsetThreshold = TimeDeltaFromSeconds(3)

// reorderedResetThreshold is the number of consecutive reordered packets
// that forces a full reset of the grouping state.
const reorderedResetThreshold = 3

// burstDeltaThreshold bounds how close a late-but-monotone packet's arrival
// must be to the previous group's completion to still belong to the burst.
var burstDeltaThreshold = TimeDeltaFromMillis(5)

// maxBurstDuration bounds how long after a group's first packet arrived a
// later packet may still join it under the negative-propagation-delta rule.
var maxBurstDuration = TimeDeltaFromMillis(100)

// sendTimeGroup accumulates the aggregate timing of one burst of packets
// sent close together together, as described by the SendTimeGroup data
// model.
type sendTimeGroup struct {
	size           DataSize
	firstSendTime  Timestamp
	sendTime       Timestamp
	firstArrival   Timestamp
	completeTime   Timestamp
	lastSystemTime Timestamp
}

func newPendingGroup() sendTimeGroup {
	return sendTimeGroup{
		firstSendTime: MinusInfinityTimestamp(),
		sendTime:      MinusInfinityTimestamp(),
		firstArrival:  MinusInfinityTimestamp(),
		completeTime:  PlusInfinityTimestamp(),
	}
}

// isFirstPacket reports whether the group has not yet accumulated any
// packets.
func (g sendTimeGroup) isFirstPacket() bool { return g.completeTime.IsPlusInfinity() }

// InterArrivalDelta implements the burst-grouping layer that turns a raw
// packet timing stream into (send-delta, arrival-delta, size-delta) tuples,
// one per completed send-time group. It owns no clock: every call is driven
// by explicit Timestamp values supplied by the caller, and it performs no
// I/O of its own.
type InterArrivalDelta struct {
	log                            logging.LeveledLogger
	currentGroup                   sendTimeGroup
	prevGroup                      sendTimeGroup
	numConsecutiveReorderedPackets int
}

// NewInterArrivalDelta creates a burst grouper in its initial reset state.
func NewInterArrivalDelta() *InterArrivalDelta {
	ia := &InterArrivalDelta{
		log: logging.NewDefaultLoggerFactory().NewLogger("bwe_inter_arrival"),
	}
	ia.Reset()
	return ia
}

// Reset returns the grouper to its initial state, discarding any
// in-progress group.
func (ia *InterArrivalDelta) Reset() {
	ia.currentGroup = newPendingGroup()
	ia.prevGroup = newPendingGroup()
	ia.numConsecutiveReorderedPackets = 0
}

// belongsToBurst reports whether a packet sent at sendTime and arriving at
// arrivalTime belongs to the group currently being accumulated.
func (ia *InterArrivalDelta) belongsToBurst(sendTime, arrivalTime Timestamp) bool {
	sendTimeDelta := sendTime.Diff(ia.currentGroup.sendTime)
	if sendTimeDelta.IsZero() {
		return true
	}
	arrivalTimeDelta := arrivalTime.Diff(ia.currentGroup.completeTime)
	propagationDelta := arrivalTimeDelta.Sub(sendTimeDelta)
	if propagationDelta.Micros() < 0 &&
		arrivalTimeDelta.LessOrEqual(burstDeltaThreshold) &&
		arrivalTime.Diff(ia.currentGroup.firstArrival).Less(maxBurstDuration) {
		return true
	}
	return false
}

// accumulate folds one packet's timing/size into the group currently being
// built, per the SendTimeGroup invariant that send_time is monotone
// non-decreasing within an active group.
func (ia *InterArrivalDelta) accumulate(sendTime, arrivalTime, systemTime Timestamp, packetSize DataSize) {
	if sendTime.After(ia.currentGroup.sendTime) {
		ia.currentGroup.sendTime = sendTime
	}
	ia.currentGroup.size = ia.currentGroup.size.Add(packetSize)
	ia.currentGroup.completeTime = arrivalTime
	ia.currentGroup.lastSystemTime = systemTime
}

// startGroup begins a brand new current group seeded by this packet.
func (ia *InterArrivalDelta) startGroup(sendTime, arrivalTime, systemTime Timestamp, packetSize DataSize) {
	ia.currentGroup.firstSendTime = sendTime
	ia.currentGroup.sendTime = sendTime
	ia.currentGroup.firstArrival = arrivalTime
	ia.accumulate(sendTime, arrivalTime, systemTime, packetSize)
}

// ComputeDeltas feeds one packet's timing into the grouper. It returns the
// inter-group deltas and true when a group boundary was crossed and a prior
// completed group existed to diff against; otherwise it returns the zero
// deltas and false.
func (ia *InterArrivalDelta) ComputeDeltas(sendTime, arrivalTime, systemTime Timestamp, packetSize DataSize) (sendDelta, arrivalDelta TimeDelta, sizeDelta DataSize, ok bool) {
	if ia.currentGroup.isFirstPacket() {
		if ia.currentGroup.firstSendTime.IsMinusInfinity() {
			ia.startGroup(sendTime, arrivalTime, systemTime, packetSize)
		} else {
			ia.accumulate(sendTime, arrivalTime, systemTime, packetSize)
		}
		return TimeDelta{}, TimeDelta{}, DataSize{}, false
	}

	if sendTime.Diff(ia.currentGroup.firstSendTime).Micros() < 0 {
		// Reordered relative to the group's first packet: silently drop.
		return TimeDelta{}, TimeDelta{}, DataSize{}, false
	}

	if ia.belongsToBurst(sendTime, arrivalTime) {
		ia.accumulate(sendTime, arrivalTime, systemTime, packetSize)
		return TimeDelta{}, TimeDelta{}, DataSize{}, false
	}

	if sendTime.Diff(ia.currentGroup.firstSendTime).LessOrEqual(sendTimeGroupLength) {
		// Not yet past the burst span: keep folding into the current group.
		ia.accumulate(sendTime, arrivalTime, systemTime, packetSize)
		return TimeDelta{}, TimeDelta{}, DataSize{}, false
	}

	// Group boundary: the accumulated current group closes.
	if ia.prevGroup.completeTime.IsFinite() {
		sd := ia.currentGroup.sendTime.Diff(ia.prevGroup.sendTime)
		ad := ia.currentGroup.completeTime.Diff(ia.prevGroup.completeTime)
		sysd := ia.currentGroup.lastSystemTime.Diff(ia.prevGroup.lastSystemTime)

		if ad.Sub(sysd).Micros() >= arrivalTimeOffsetThreshold.Micros() {
			if ia.log != nil {
				ia.log.Warnf("inter-arrival: clock jump detected (arrival/system divergence %v), resetting group state", ad.Sub(sysd))
			}
			ia.Reset()
			return TimeDelta{}, TimeDelta{}, DataSize{}, false
		}
		if ad.Micros() < 0 {
			ia.numConsecutiveReorderedPackets++
			if ia.numConsecutiveReorderedPackets >= reorderedResetThreshold {
				if ia.log != nil {
					ia.log.Warnf("inter-arrival: %d consecutive reordered packets, resetting group state", ia.numConsecutiveReorderedPackets)
				}
				ia.Reset()
			}
			return TimeDelta{}, TimeDelta{}, DataSize{}, false
		}
		ia.numConsecutiveReorderedPackets = 0

		sizeD := ia.currentGroup.size.Sub(ia.prevGroup.size)
		ia.prevGroup = ia.currentGroup
		ia.currentGroup = newPendingGroup()
		ia.startGroup(sendTime, arrivalTime, systemTime, packetSize)
		return sd, ad, sizeD, true
	}

	ia.prevGroup = ia.currentGroup
	ia.currentGroup = newPendingGroup()
	ia.startGroup(sendTime, arrivalTime, systemTime, packetSize)
	return TimeDelta{}, TimeDelta{}, DataSize{}, false
}
