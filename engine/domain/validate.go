package domain

import (
	"errors"
	"strings"
)

const (
	// MinQuestionLen is the shortest question accepted by the API.
	MinQuestionLen = 3
	// MinPasswordLen is the shortest password accepted at registration.
	MinPasswordLen = 6
)

var (
	ErrQuestionTooShort = errors.New("question too short")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrPasswordTooShort = errors.New("password too short")
)

// ValidateQuestion rejects empty and too-short questions.
func ValidateQuestion(q string) error {
	if len(strings.TrimSpace(q)) < MinQuestionLen {
		return ErrQuestionTooShort
	}
	return nil
}

// ValidateEmail performs a shallow shape check; real validation is the
// mail exchanger's job.
func ValidateEmail(email string) error {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}
