package geo

import "github.com/shopspring/decimal"

// Tier names
const (
	TierFree       = "free"
	TierLow        = "low"
	TierHigh       = "high"
	TierOutOfRange = "out_of_range"
)

// Tier boundaries in km, inclusive
const (
	FreeRadiusKm = 0.5
	LowRadiusKm  = 5
	HighRadiusKm = 20
)

// Policy holds the fixed fees of the paid tiers
type Policy struct {
	LowFee  decimal.Decimal
	HighFee decimal.Decimal
}

// Tier is the delivery offer for a distance bucket
type Tier struct {
	Name            string
	Fee             decimal.Decimal
	DeliveryOffered bool
}

// TierFor buckets a customer-to-store distance
func TierFor(distanceKm float64, policy Policy) Tier {
	switch {
	case distanceKm <= FreeRadiusKm:
		return Tier{Name: TierFree, Fee: decimal.Zero, DeliveryOffered: true}
	case distanceKm <= LowRadiusKm:
		return Tier{Name: TierLow, Fee: policy.LowFee, DeliveryOffered: true}
	case distanceKm <= HighRadiusKm:
		return Tier{Name: TierHigh, Fee: policy.HighFee, DeliveryOffered: true}
	default:
		return Tier{Name: TierOutOfRange, Fee: decimal.Zero, DeliveryOffered: false}
	}
}
