package domain

// OfferStatus represents where an offer is in its lifecycle.
// The lifecycle is strictly forward: new -> negotiating -> accepted -> ordered -> in_transit -> delivered.
type OfferStatus string

const (
	OfferStatusNew         OfferStatus = "new"
	OfferStatusNegotiating OfferStatus = "negotiating"
	OfferStatusAccepted    OfferStatus = "accepted"
	OfferStatusOrdered     OfferStatus = "ordered"
	OfferStatusInTransit   OfferStatus = "in_transit"
	OfferStatusDelivered   OfferStatus = "delivered"
)

// OfferStatuses lists every status in lifecycle order
var OfferStatuses = []OfferStatus{
	OfferStatusNew,
	OfferStatusNegotiating,
	OfferStatusAccepted,
	OfferStatusOrdered,
	OfferStatusInTransit,
	OfferStatusDelivered,
}

// ConvertedOfferStatuses are the statuses counted as a won offer in reporting
var ConvertedOfferStatuses = []OfferStatus{
	OfferStatusAccepted,
	OfferStatusOrdered,
	OfferStatusInTransit,
	OfferStatusDelivered,
}

// offerTransitions is the full set of legal status writes
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferStatusNew:         {OfferStatusNegotiating},
	OfferStatusNegotiating: {OfferStatusAccepted, OfferStatusOrdered},
	OfferStatusAccepted:    {OfferStatusOrdered},
	OfferStatusOrdered:     {OfferStatusInTransit, OfferStatusDelivered},
	OfferStatusInTransit:   {OfferStatusDelivered},
	OfferStatusDelivered:   {},
}

// IsValid checks if the status is a known lifecycle state
func (s OfferStatus) IsValid() bool {
	_, ok := offerTransitions[s]
	return ok
}

// Rank returns the position of the status in the lifecycle, or -1 if unknown
func (s OfferStatus) Rank() int {
	for i, st := range OfferStatuses {
		if st == s {
			return i
		}
	}
	return -1
}

// IsConverted reports whether an order has been created for an offer in this status
func (s OfferStatus) IsConverted() bool {
	return s.Rank() >= OfferStatusOrdered.Rank()
}

// IsTerminal reports whether the offer can no longer change status
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusDelivered
}

// CanTransitionTo reports whether moving from s to next is a legal status write
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	for _, allowed := range offerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OfferStatusForShipment returns the offer status mirrored from a shipment status.
// A pending shipment leaves the offer as ordered.
func OfferStatusForShipment(status ShipmentStatus) OfferStatus {
	switch status {
	case ShipmentStatusPickedUp, ShipmentStatusInTransit, ShipmentStatusOutForDelivery:
		return OfferStatusInTransit
	case ShipmentStatusDelivered:
		return OfferStatusDelivered
	default:
		return OfferStatusOrdered
	}
}
