package types

import "time"

// BookingStatus is the lifecycle state of a booking as seen by the guard.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// InstallmentStatus tracks a single installment's payment state.
// pending→paid is terminal; pending→overdue is reversible by payment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// InstallmentPayment is one entry of a booking's installment plan.
type InstallmentPayment struct {
	ID       string            `json:"id"`
	Amount   float64           `json:"amount"`
	DueDate  time.Time         `json:"due_date"`
	Status   InstallmentStatus `json:"status"`
	PaidDate *time.Time        `json:"paid_date,omitempty"`
}

// Booking is a read-only view supplied by the booking subsystem.
// The payment guard never mutates it; it returns verdicts the caller applies.
type Booking struct {
	ID           string               `json:"id"`
	Email        string               `json:"email"`
	Status       BookingStatus        `json:"status"`
	TotalAmount  float64              `json:"total_amount"`
	PaidAmount   float64              `json:"paid_amount"`
	TravelDate   time.Time            `json:"travel_date"`
	Installments []InstallmentPayment `json:"installments,omitempty"`
}

// RemainingBalance is the amount still owed on the booking.
func (b *Booking) RemainingBalance() float64 {
	return b.TotalAmount - b.PaidAmount
}

// FullyPaid reports whether nothing is owed anymore.
func (b *Booking) FullyPaid() bool {
	return b.PaidAmount >= b.TotalAmount
}
