package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"stockcount/internal"
	"stockcount/internal/logger"
	"stockcount/internal/pipeline"
	"stockcount/internal/util"
)

const (
	metaLastFeedSync = "catalog.last_feed_sync"
	metaFeedHash     = "catalog.feed_hash"
	// SourceFeed labels import runs started by the feed sync.
	SourceFeed = "feed"
)

type FeedFetcher interface {
	FetchCatalog(ctx context.Context) ([]byte, error)
}

type SyncResult struct {
	Skipped bool
	Hash    string
	Summary internal.ImportSummary
}

// SyncService pulls the catalog feed and imports it when it changed.
type SyncService struct {
	meta     MetadataStore
	client   FeedFetcher
	importer *pipeline.Importer
	log      *logger.Logger
	now      func() time.Time
}

func NewSyncService(meta MetadataStore, client FeedFetcher, importer *pipeline.Importer, log *logger.Logger) *SyncService {
	if log == nil {
		log = logger.NewNop()
	}
	return &SyncService{meta: meta, client: client, importer: importer, log: log, now: time.Now}
}

// Sync fetches the feed and imports it. An unchanged feed is skipped unless force is set.
func (s *SyncService) Sync(ctx context.Context, force bool) (SyncResult, error) {
	body, err := s.client.FetchCatalog(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	sum := sha256.Sum256(body)
	res := SyncResult{Hash: hex.EncodeToString(sum[:])}

	if !force {
		last, err := s.meta.GetMetadata(metaFeedHash)
		if err != nil {
			return res, err
		}
		if util.DerefString(last) == res.Hash {
			res.Skipped = true
			s.log.WithField("hash", res.Hash).Info("catalog feed unchanged, skipping import")
			return res, nil
		}
	}

	summary, err := s.importer.ImportCatalogFrom(ctx, SourceFeed, string(body))
	res.Summary = summary
	if err != nil {
		return res, err
	}

	if err := s.meta.SetMetadata(metaFeedHash, res.Hash); err != nil {
		return res, err
	}
	if err := s.meta.SetMetadata(metaLastFeedSync, s.now().UTC().Format(time.RFC3339)); err != nil {
		return res, err
	}
	return res, nil
}
