package storage

// Beneficiary statuses.
const (
	BeneficiaryActive    = "ACTIVE"
	BeneficiarySuspended = "SUSPENDED"
)

// Payment statuses. ACCEPTED and RECONCILED payments count as actually
// received by the beneficiary.
const (
	PaymentAccepted   = "ACCEPTED"
	PaymentReconciled = "RECONCILED"
	PaymentPending    = "PENDING"
	PaymentRejected   = "REJECTED"
)

// ReceivedPaymentStatuses lists the statuses that count as a received payment.
var ReceivedPaymentStatuses = []string{PaymentAccepted, PaymentReconciled}

// Ticket statuses.
const (
	TicketOpen     = "OPEN"
	TicketResolved = "RESOLVED"
	TicketClosed   = "CLOSED"
)

// TreatedTicketStatuses lists the statuses that count as a handled ticket.
var TreatedTicketStatuses = []string{TicketResolved, TicketClosed}
