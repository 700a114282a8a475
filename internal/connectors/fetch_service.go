package connectors

import (
	"context"
	"fmt"

	"stockcount/internal/logger"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       *logger.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(emails EmailWriter, rawMailDir string, connector MailConnector, log *logger.Logger) *FetchService {
	if log == nil {
		log = logger.NewNop()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(emails, rawMailDir),
		log:       log,
	}
}

// FetchAndStore pulls up to max messages from label. A message that cannot be
// stored is logged and skipped; the rest of the batch still lands.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{
				"provider":   msg.Provider,
				"message_id": msg.MessageID,
			}).Error("failed to store fetched message")
			continue
		}
		res.Stored++
		s.log.WithFields(logger.Fields{"email_id": row.ID, "subject": row.Subject, "status": row.Status}).Debug("message stored")
	}
	return res, nil
}
