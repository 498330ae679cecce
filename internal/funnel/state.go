package funnel

import "gatebot/internal/storage"

// State is derived on every read. It is never stored.
type State int

const (
	StateNoOffer State = iota
	StateAwaitingVerification
	StateVerified
	// StateDelivered is informational; delivery may be repeated.
	StateDelivered
	// StateOfferGone: the selected offer was deleted or deactivated.
	StateOfferGone
)

func (s State) String() string {
	switch s {
	case StateNoOffer:
		return "NO_OFFER"
	case StateAwaitingVerification:
		return "AWAITING_VERIFICATION"
	case StateVerified:
		return "VERIFIED"
	case StateDelivered:
		return "DELIVERED"
	case StateOfferGone:
		return "OFFER_GONE"
	default:
		return "UNKNOWN"
	}
}

// Classify derives the funnel state. id and offer are nil when absent;
// delivered reports a file_sent entry for the selected offer.
func Classify(id *storage.Identity, offer *storage.Offer, delivered bool) State {
	if id == nil || id.SelectedOffer == "" {
		return StateNoOffer
	}
	if offer == nil || offer.Key != id.SelectedOffer || !offer.Active {
		return StateOfferGone
	}
	if !id.JoinedOK {
		return StateAwaitingVerification
	}
	if delivered {
		return StateDelivered
	}
	return StateVerified
}
