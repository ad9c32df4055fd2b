package core

import (
	"context"
	"time"
)

// PaymentApprovedEvent is published whenever a student payment is approved.
// It is intentionally light: consumers fetch the full records from the
// database using the ids.
type PaymentApprovedEvent struct {
	PaymentID     string    `json:"pago_id"`
	StudentID     string    `json:"estudiante_id"`
	MensualidadID string    `json:"mensualidad_id,omitempty"`
	TotalUSD      string    `json:"total_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventPublisher is any service that can publish domain events to the
// reporting broker.
type EventPublisher interface {
	PublishPaymentApproved(ctx context.Context, evt PaymentApprovedEvent) error
	Close() error
}
