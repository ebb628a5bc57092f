package enums

import "fmt"

// OfferState represents the lifecycle state of a surplus-food offer.
type OfferState string

const (
	OfferStateActive    OfferState = "active"
	OfferStateVerifying OfferState = "verifying"
	OfferStatePurchased OfferState = "purchased"
	OfferStateInactive  OfferState = "inactive"
)

var validOfferStates = []OfferState{
	OfferStateActive,
	OfferStateVerifying,
	OfferStatePurchased,
	OfferStateInactive,
}

// String implements fmt.Stringer.
func (s OfferState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OfferState.
func (s OfferState) IsValid() bool {
	for _, candidate := range validOfferStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPurchasable reports whether offers in this state can be bought.
func (s OfferState) IsPurchasable() bool {
	return s == OfferStateActive
}

// ParseOfferState converts raw input into an OfferState.
func ParseOfferState(value string) (OfferState, error) {
	for _, candidate := range validOfferStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer state %q", value)
}
