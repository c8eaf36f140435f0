// Package notify delivers stored reports to a requester by email.
package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/devghori1264/vinreport/internal/models"
)

// Notifier sends one message per call and never retries.
type Notifier interface {
	Send(ctx context.Context, req models.NotificationRequest) error
}

const (
	// DefaultSenderName is the display name on outgoing mail.
	DefaultSenderName = "VIN Reports"

	subjectTemplate = "Your Vehicle PDF Report (%s)"
	bodyTemplate    = "Attached is your VIN report for %s.\n\nYou can also download it at %s.\n"
)

// NewRequest fills the fixed subject/body template for a VIN.
func NewRequest(recipient, vin, location string, attachment models.Attachment) models.NotificationRequest {
	return models.NotificationRequest{
		Recipient:  recipient,
		Subject:    fmt.Sprintf(subjectTemplate, vin),
		Body:       fmt.Sprintf(bodyTemplate, vin, location),
		VIN:        vin,
		Location:   location,
		Attachment: attachment,
	}
}

// ValidateRecipient rejects addresses that no delivery service would accept.
func ValidateRecipient(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return &NotificationError{Kind: KindRecipient, Recipient: addr, Err: fmt.Errorf("invalid address: %w", err)}
	}
	if parsed.Address != addr {
		return &NotificationError{Kind: KindRecipient, Recipient: addr, Err: fmt.Errorf("expected a bare address, got %q", addr)}
	}
	return nil
}

// Disabled is used when no delivery credentials are configured. Every send
// fails with a config error, which the pipeline reports per request.
type Disabled struct{}

func (Disabled) Send(_ context.Context, req models.NotificationRequest) error {
	return &NotificationError{Kind: KindConfig, Recipient: req.Recipient, Err: fmt.Errorf("email delivery is not configured")}
}
