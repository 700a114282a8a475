package pipeline

import (
	"context"
	"errors"
	"os"

	"stockcount/internal"
	"stockcount/internal/logger"
)

const (
	EmailFetched  = "fetched"
	EmailImported = "imported"
	EmailSkipped  = "skipped"
)

type MailStore interface {
	MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error)
	ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error)
	UpdateEmailStatus(emailID int, status string) error
}

// MailImportService imports catalog files received by mail.
type MailImportService struct {
	mail     MailStore
	importer *Importer
	exts     []string
	log      *logger.Logger
}

func NewMailImportService(mail MailStore, importer *Importer, exts []string, log *logger.Logger) *MailImportService {
	if log == nil {
		log = logger.NewNop()
	}
	return &MailImportService{mail: mail, importer: importer, exts: exts, log: log}
}

type ProcessResult struct {
	EmailID int
	Sources int
	Summary internal.ImportSummary
}

func (s *MailImportService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.mail.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending imports fetched messages, oldest first. It stops at the
// first error; a message that hit an unavailable store stays fetched.
func (s *MailImportService) ProcessPending(ctx context.Context, limit int, provider string) (int, internal.ImportSummary, error) {
	var total internal.ImportSummary
	pending, err := s.mail.ListEmailsByStatus(EmailFetched, limit)
	if err != nil {
		return 0, total, err
	}
	processed := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		addSummary(&total, res.Summary)
		if err != nil {
			return processed, total, err
		}
		processed++
	}
	return processed, total, nil
}

func (s *MailImportService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	log := s.log.WithFields(logger.Fields{"email_id": email.ID, "provider": email.Provider})
	res := ProcessResult{EmailID: email.ID}

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return res, err
	}
	extraction, err := ExtractCatalogSources(raw, s.exts)
	if err != nil {
		return res, err
	}

	if len(extraction.Sources) == 0 {
		log.WithField("attachments", extraction.Attachments).Info("no catalog content in message")
		return res, s.mail.UpdateEmailStatus(email.ID, EmailSkipped)
	}

	for _, src := range extraction.Sources {
		summary, err := s.importer.ImportCatalogFrom(ctx, "mail:"+src.Name, src.Content)
		addSummary(&res.Summary, summary)
		res.Sources++
		if err != nil {
			if errors.Is(err, internal.ErrStoreUnavailable) {
				log.WithError(err).Warn("catalog store unavailable, message left for the next cycle")
			}
			return res, err
		}
		log.WithFields(logger.Fields{"source": src.Name, "kind": string(src.Kind)}).Info(summary.Message())
	}

	return res, s.mail.UpdateEmailStatus(email.ID, EmailImported)
}

func addSummary(dst *internal.ImportSummary, s internal.ImportSummary) {
	dst.TotalCandidates += s.TotalCandidates
	dst.Imported += s.Imported
	dst.SkippedExisting += s.SkippedExisting
	dst.SkippedFailed += s.SkippedFailed
}
