// Package connectors pulls catalog mail from a provider mailbox into local storage.
package connectors

import (
	"context"
	"fmt"
	"strings"

	"stockcount/internal"
	"stockcount/internal/config"
	gmailconnector "stockcount/internal/connectors/gmail"
	imapconnector "stockcount/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// NewConnector returns the connector for provider ("gmail" or "imap").
func NewConnector(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
