// Package bwe implements Google Congestion Control (GCC) receiver-side
// bandwidth estimation for WebRTC.
package bwe

import "fmt"

// Timestamp and TimeDelta are microsecond-resolution signed 64-bit counters
// with reserved +/-infinity sentinels, mirroring the value-type primitives
// used throughout libwebrtc's congestion control code. Keeping time as an
// explicit value type (rather than passing around bare int64 or time.Time)
// lets the trendline and AIMD code perform saturating arithmetic against
// infinities without special-casing every call site.
const (
	plusInfinityUs  = int64(1<<63 - 1)
	minusInfinityUs = -plusInfinityUs - 1
)

// Timestamp is a point in time expressed in microseconds since an arbitrary
// epoch chosen by the caller (typically "session start" or UTC).
type Timestamp struct {
	us int64
}

// TimeDelta is a signed duration expressed in microseconds.
type TimeDelta struct {
	us int64
}

// TimestampFromMicros constructs a Timestamp from a microsecond count.
func TimestampFromMicros(us int64) Timestamp { return Timestamp{us: us} }

// TimestampFromMillis constructs a Timestamp from a millisecond count.
func TimestampFromMillis(ms int64) Timestamp { return Timestamp{us: ms * 1000} }

// PlusInfinityTimestamp returns the sentinel representing an unbounded future.
func PlusInfinityTimestamp() Timestamp { return Timestamp{us: plusInfinityUs} }

// MinusInfinityTimestamp returns the sentinel representing an unbounded past.
func MinusInfinityTimestamp() Timestamp { return Timestamp{us: minusInfinityUs} }

// Micros returns the timestamp as a microsecond count.
func (t Timestamp) Micros() int64 { return t.us }

// Millis returns the timestamp truncated to milliseconds.
func (t Timestamp) Millis() int64 { return t.us / 1000 }

// IsPlusInfinity reports whether t is the +infinity sentinel.
func (t Timestamp) IsPlusInfinity() bool { return t.us == plusInfinityUs }

// IsMinusInfinity reports whether t is the -infinity sentinel.
func (t Timestamp) IsMinusInfinity() bool { return t.us == minusInfinityUs }

// IsInfinite reports whether t is either infinity sentinel.
func (t Timestamp) IsInfinite() bool { return t.IsPlusInfinity() || t.IsMinusInfinity() }

// IsFinite reports whether t is neither infinity sentinel.
func (t Timestamp) IsFinite() bool { return !t.IsInfinite() }

// Before reports whether t occurs strictly before o.
func (t Timestamp) Before(o Timestamp) bool { return t.us < o.us }

// After reports whether t occurs strictly after o.
func (t Timestamp) After(o Timestamp) bool { return t.us > o.us }

// Add returns t + d, saturating to the matching infinity if either operand
// is infinite.
func (t Timestamp) Add(d TimeDelta) Timestamp {
	if t.IsPlusInfinity() || d.IsPlusInfinity() {
		return PlusInfinityTimestamp()
	}
	if t.IsMinusInfinity() || d.IsMinusInfinity() {
		return MinusInfinityTimestamp()
	}
	return Timestamp{us: t.us + d.us}
}

// Sub returns t - d, saturating to the matching infinity if either operand
// is infinite.
func (t Timestamp) Sub(d TimeDelta) Timestamp {
	if t.IsPlusInfinity() || d.IsMinusInfinity() {
		return PlusInfinityTimestamp()
	}
	if t.IsMinusInfinity() || d.IsPlusInfinity() {
		return MinusInfinityTimestamp()
	}
	return Timestamp{us: t.us - d.us}
}

// Diff returns t - o as a TimeDelta.
func (t Timestamp) Diff(o Timestamp) TimeDelta {
	return TimeDelta{us: t.us - o.us}
}

// String implements fmt.Stringer.
func (t Timestamp) String() string {
	switch {
	case t.IsPlusInfinity():
		return "+inf"
	case t.IsMinusInfinity():
		return "-inf"
	default:
		return fmt.Sprintf("%dus", t.us)
	}
}

// TimeDeltaFromMicros constructs a TimeDelta from a microsecond count.
func TimeDeltaFromMicros(us int64) TimeDelta { return TimeDelta{us: us} }

// TimeDeltaFromMillis constructs a TimeDelta from a millisecond count.
func TimeDeltaFromMillis(ms int64) TimeDelta { return TimeDelta{us: ms * 1000} }

// TimeDeltaFromSeconds constructs a TimeDelta from a (possibly fractional)
// second count.
func TimeDeltaFromSeconds(s float64) TimeDelta { return TimeDelta{us: int64(s * 1e6)} }

// ZeroTimeDelta is the zero duration.
func ZeroTimeDelta() TimeDelta { return TimeDelta{} }

// PlusInfinityTimeDelta returns the sentinel representing an unbounded
// duration.
func PlusInfinityTimeDelta() TimeDelta { return TimeDelta{us: plusInfinityUs} }

// MinusInfinityTimeDelta returns the sentinel representing an unbounded
// negative duration.
func MinusInfinityTimeDelta() TimeDelta { return TimeDelta{us: minusInfinityUs} }

// Micros returns the delta as a microsecond count.
func (d TimeDelta) Micros() int64 { return d.us }

// Millis returns the delta truncated toward zero to milliseconds.
func (d TimeDelta) Millis() int64 { return d.us / 1000 }

// Seconds returns the delta truncated toward zero to whole seconds.
func (d TimeDelta) Seconds() int64 { return d.us / 1_000_000 }

// SecondsFloat returns the delta as a fractional second count.
func (d TimeDelta) SecondsFloat() float64 { return float64(d.us) / 1e6 }

// IsZero reports whether d is exactly zero.
func (d TimeDelta) IsZero() bool { return d.us == 0 }

// IsPlusInfinity reports whether d is the +infinity sentinel.
func (d TimeDelta) IsPlusInfinity() bool { return d.us == plusInfinityUs }

// IsMinusInfinity reports whether d is the -infinity sentinel.
func (d TimeDelta) IsMinusInfinity() bool { return d.us == minusInfinityUs }

// IsInfinite reports whether d is either infinity sentinel.
func (d TimeDelta) IsInfinite() bool { return d.IsPlusInfinity() || d.IsMinusInfinity() }

// IsFinite reports whether d is neither infinity sentinel.
func (d TimeDelta) IsFinite() bool { return !d.IsInfinite() }

// Less reports whether d is strictly less than o.
func (d TimeDelta) Less(o TimeDelta) bool { return d.us < o.us }

// LessOrEqual reports whether d is less than or equal to o.
func (d TimeDelta) LessOrEqual(o TimeDelta) bool { return d.us <= o.us }

// Add returns d + o.
func (d TimeDelta) Add(o TimeDelta) TimeDelta { return TimeDelta{us: d.us + o.us} }

// Sub returns d - o.
func (d TimeDelta) Sub(o TimeDelta) TimeDelta { return TimeDelta{us: d.us - o.us} }

// Scale returns d scaled by a floating-point factor.
func (d TimeDelta) Scale(factor float64) TimeDelta {
	return TimeDelta{us: int64(float64(d.us) * factor)}
}

// Clamp restricts d to [lo, hi].
func (d TimeDelta) Clamp(lo, hi TimeDelta) TimeDelta {
	if d.us < lo.us {
		return lo
	}
	if d.us > hi.us {
		return hi
	}
	return d
}

// String implements fmt.Stringer.
func (d TimeDelta) String() string {
	switch {
	case d.IsPlusInfinity():
		return "+inf"
	case d.IsMinusInfinity():
		return "-inf"
	default:
		return fmt.Sprintf("%dus", d.us)
	}
}

// DataRate is a signed bits-per-second value with reserved +/-infinity
// sentinels, analogous to Timestamp/TimeDelta.
type DataRate struct {
	bps int64
}

// DataRateFromBitsPerSec constructs a DataRate from a bits-per-second count.
func DataRateFromBitsPerSec(bps int64) DataRate { return DataRate{bps: bps} }

// DataRateFromKilobitsPerSec constructs a DataRate from a kilobits-per-second
// count.
func DataRateFromKilobitsPerSec(kbps int64) DataRate { return DataRate{bps: kbps * 1000} }

// ZeroDataRate is the zero rate.
func ZeroDataRate() DataRate { return DataRate{} }

// PlusInfinityDataRate returns the sentinel representing unbounded rate.
func PlusInfinityDataRate() DataRate { return DataRate{bps: plusInfinityUs} }

// MinusInfinityDataRate returns the sentinel representing unbounded negative
// rate. Never produced by the controller but required to keep the type's
// comparison operators total.
func MinusInfinityDataRate() DataRate { return DataRate{bps: minusInfinityUs} }

// Bps returns the rate in bits per second.
func (r DataRate) Bps() int64 { return r.bps }

// Kbps returns the rate truncated toward zero to kilobits per second.
func (r DataRate) Kbps() int64 { return r.bps / 1000 }

// KbpsFloat returns the rate as a fractional kilobits-per-second value.
func (r DataRate) KbpsFloat() float64 { return float64(r.bps) / 1000 }

// IsZero reports whether r is exactly zero.
func (r DataRate) IsZero() bool { return r.bps == 0 }

// IsPlusInfinity reports whether r is the +infinity sentinel.
func (r DataRate) IsPlusInfinity() bool { return r.bps == plusInfinityUs }

// IsInfinite reports whether r is either infinity sentinel.
func (r DataRate) IsInfinite() bool { return r.bps == plusInfinityUs || r.bps == minusInfinityUs }

// IsFinite reports whether r is neither infinity sentinel.
func (r DataRate) IsFinite() bool { return !r.IsInfinite() }

// Less reports whether r is strictly less than o.
func (r DataRate) Less(o DataRate) bool { return r.bps < o.bps }

// Greater reports whether r is strictly greater than o.
func (r DataRate) Greater(o DataRate) bool { return r.bps > o.bps }

// Add returns r + o.
func (r DataRate) Add(o DataRate) DataRate { return DataRate{bps: r.bps + o.bps} }

// Sub returns r - o.
func (r DataRate) Sub(o DataRate) DataRate { return DataRate{bps: r.bps - o.bps} }

// Scale returns r scaled by a floating-point factor.
func (r DataRate) Scale(factor float64) DataRate {
	return DataRate{bps: int64(float64(r.bps) * factor)}
}

// Max returns the larger of r and o.
func (r DataRate) Max(o DataRate) DataRate {
	if r.bps > o.bps {
		return r
	}
	return o
}

// Min returns the smaller of r and o.
func (r DataRate) Min(o DataRate) DataRate {
	if r.bps < o.bps {
		return r
	}
	return o
}

// Mul returns r * delta as a DataSize, rounding half-up at 0.5 byte. The
// +4e6 bias before the integer division by 8e6 must be preserved bit-exactly:
// downstream bitrate periods and additive-increase sizes depend on it at low
// bitrates (see the GCC near-max-rate computation).
func (r DataRate) Mul(d TimeDelta) DataSize {
	microbits := r.bps * d.us
	return DataSize{bytes: (microbits + 4_000_000) / 8_000_000}
}

// String implements fmt.Stringer.
func (r DataRate) String() string {
	switch {
	case r.IsPlusInfinity():
		return "+inf bps"
	case r.bps == minusInfinityUs:
		return "-inf bps"
	default:
		return fmt.Sprintf("%dbps", r.bps)
	}
}

// DataSize is a byte count.
type DataSize struct {
	bytes int64
}

// DataSizeFromBytes constructs a DataSize from a byte count.
func DataSizeFromBytes(bytes int64) DataSize { return DataSize{bytes: bytes} }

// ZeroDataSize is the zero size.
func ZeroDataSize() DataSize { return DataSize{} }

// Bytes returns the size in bytes.
func (s DataSize) Bytes() int64 { return s.bytes }

// microbits returns the size in bits scaled by 1e6, matching the scaling used
// internally by Div so that truncation toward zero happens only once, at the
// final division.
func (s DataSize) microbits() int64 { return s.bytes * 8_000_000 }

// DivRate returns s / rate as a TimeDelta, truncating toward zero.
func (s DataSize) DivRate(rate DataRate) TimeDelta {
	return TimeDelta{us: s.microbits() / rate.bps}
}

// DivDelta returns s / delta as a DataRate, truncating toward zero.
func (s DataSize) DivDelta(d TimeDelta) DataRate {
	return DataRate{bps: s.microbits() / d.us}
}

// Scale returns s scaled by a floating-point factor, truncating toward zero.
func (s DataSize) Scale(factor float64) DataSize {
	return DataSize{bytes: int64(float64(s.bytes) * factor)}
}

// Add returns s + o.
func (s DataSize) Add(o DataSize) DataSize { return DataSize{bytes: s.bytes + o.bytes} }

// Sub returns s - o.
func (s DataSize) Sub(o DataSize) DataSize { return DataSize{bytes: s.bytes - o.bytes} }

// String implements fmt.Stringer.
func (s DataSize) String() string { return fmt.Sprintf("%dbytes", s.bytes) }
