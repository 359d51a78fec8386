package domain

type Status string

// remember to add new statuses to the validStatuses map
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusConfirmed:  {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; ok {
		return status, nil
	}
	return "", ValidationError{Field: "status", Reason: "unknown status " + s}
}

// CanCancel reports whether an order in this status may still be cancelled
// by its owner.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusConfirmed
}

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentPayme PaymentMethod = "payme"
	PaymentClick PaymentMethod = "click"
)

var validPaymentMethods = map[PaymentMethod]struct{}{
	PaymentCash:  {},
	PaymentCard:  {},
	PaymentPayme: {},
	PaymentClick: {},
}

// ToPaymentMethod parses a payment method, defaulting to cash when empty.
func ToPaymentMethod(s string) (PaymentMethod, error) {
	if s == "" {
		return PaymentCash, nil
	}
	method := PaymentMethod(s)
	if _, ok := validPaymentMethods[method]; ok {
		return method, nil
	}
	return "", ValidationError{Field: "payment_method", Reason: "unknown payment method " + s}
}
