// Package notifier delivers account and booking emails. Producers publish
// messages to a RabbitMQ queue; a consumer drains the queue into SMTP.
package notifier

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	KindEmailVerification   Kind = "email_verification"
	KindPasswordReset       Kind = "password_reset"
	KindOTP                 Kind = "otp"
	KindBookingConfirmation Kind = "booking_confirmation"
)

type Message struct {
	Kind    Kind      `json:"kind"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// Notifier hands a message off for delivery. Callers log errors and carry
// on; a failed notification never fails the request that caused it.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

func VerificationEmail(to, name, link string) Message {
	return Message{
		Kind:    KindEmailVerification,
		To:      to,
		Subject: "Verify your email address",
		Body: fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\n"+
			"If you did not create an account you can ignore this message.\n", greetingName(name), link),
	}
}

func PasswordResetEmail(to, name, link string, ttl time.Duration) Message {
	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n\n"+
			"If you did not ask for a reset, no action is needed.\n", greetingName(name), ttl, link),
	}
}

func OTPEmail(to, name, code string, ttl time.Duration) Message {
	return Message{
		Kind:    KindOTP,
		To:      to,
		Subject: "Your verification code",
		Body: fmt.Sprintf("Hello %s,\n\nYour code is %s. It expires in %s and can be used once.\n",
			greetingName(name), code, ttl),
	}
}

type BookingDetails struct {
	Reference  string
	EventTitle string
	StartsAt   time.Time
	Venue      string
	Seats      int
	TotalPrice float64
}

func BookingConfirmationEmail(to, name string, b BookingDetails) Message {
	return Message{
		Kind:    KindBookingConfirmation,
		To:      to,
		Subject: fmt.Sprintf("Booking received: %s", b.EventTitle),
		Body: fmt.Sprintf("Hello %s,\n\nWe received your booking %s.\n\nEvent: %s\nWhen: %s\nWhere: %s\nSeats: %d\nTotal: %.2f\n",
			greetingName(name), b.Reference, b.EventTitle, b.StartsAt.Format(time.RFC1123), b.Venue, b.Seats, b.TotalPrice),
	}
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
