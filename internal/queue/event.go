// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// DefaultOTPQueue is the durable queue OTP mail events are published to.
const DefaultOTPQueue = "auth.otp"

// OTPMailEvent asks the mail worker to deliver a login code. It is the only
// place the code travels after login step 1; it must never be logged.
type OTPMailEvent struct {
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequestedAt time.Time `json:"requested_at"`
}
