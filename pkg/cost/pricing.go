// Copyright 2025 Alephnode Protocol
//
// Pricing is consumed read-only by the cost gate; the schedule itself
// lives in a pricing aggregate outside this core's scope. PricingModel
// is the seam between the two: ActiveAt resolves which version of the
// schedule governed a message at its declared time, so a later schedule
// change never retroactively re-prices already-processed messages.

package cost

import (
	"time"

	"github.com/alephnode/ccn/pkg/database"
)

// Quote is the computed cost of one resource-bearing message.
type Quote struct {
	Hold   float64
	Stream float64
	Credit float64
}

// PricingModel resolves the cost of a message under the schedule active
// at a point in time.
type PricingModel interface {
	// ActiveAt returns the pricing schedule version governing messages
	// timestamped at t.
	ActiveAt(t time.Time) Schedule
}

// Schedule prices one message given its type and declared size.
type Schedule interface {
	Quote(msgType database.MessageType, sizeBytes int64) Quote
}

// StaticSchedule is a fixed per-byte/per-message pricing table, used as
// the default schedule and in tests; a real deployment supplies a
// PricingModel backed by the aggregate that mirrors the pricing oracle.
type StaticSchedule struct {
	BaseCost     float64
	PerByteHold  float64
	PerByteStream float64
}

// Quote implements Schedule.
func (s StaticSchedule) Quote(msgType database.MessageType, sizeBytes int64) Quote {
	return Quote{
		Hold:   s.BaseCost + float64(sizeBytes)*s.PerByteHold,
		Stream: float64(sizeBytes) * s.PerByteStream,
		Credit: s.BaseCost,
	}
}

// FixedPricingModel always returns the same Schedule, regardless of
// message time. Useful until the pricing-aggregate mirror is wired.
type FixedPricingModel struct {
	Schedule Schedule
}

// ActiveAt implements PricingModel.
func (m FixedPricingModel) ActiveAt(t time.Time) Schedule {
	return m.Schedule
}
