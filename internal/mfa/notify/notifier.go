// Package notify delivers verification codes over e-mail and SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Channel is a delivery channel for a verification code.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// ErrChannelUnavailable is returned when no sender is configured for the channel.
var ErrChannelUnavailable = errors.New("notify: channel not configured")

// Message is the payload for one delivery. Code is the plain verification code; Subject and Text are
// the rendered e-mail/SMS content containing it.
type Message struct {
	Subject string
	Text    string
	Code    string
}

// Notifier sends a message to a destination on a channel. A nil error means the provider accepted it.
type Notifier interface {
	Send(ctx context.Context, channel Channel, destination string, msg Message) error
}

// EmailSender delivers e-mail.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers an OTP by text message.
type SMSSender interface {
	SendOTP(ctx context.Context, phone, otp string) error
}

// Router dispatches to the configured sender for each channel. A nil sender makes its channel fail.
type Router struct {
	Email EmailSender
	SMS   SMSSender
}

// Send implements Notifier.
func (r *Router) Send(ctx context.Context, channel Channel, destination string, msg Message) error {
	switch channel {
	case ChannelEmail:
		if r.Email == nil {
			return fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
		}
		return r.Email.SendEmail(ctx, destination, msg.Subject, msg.Text)
	case ChannelSMS:
		if r.SMS == nil {
			return fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
		}
		return r.SMS.SendOTP(ctx, destination, msg.Code)
	default:
		return fmt.Errorf("notify: unknown channel %q", channel)
	}
}
