// Package email delivers account notices.
package email

import (
	"context"
	"strings"
)

// EmailSender delivers transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// headerSafe strips line breaks so values cannot inject extra headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
