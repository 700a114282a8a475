package config

import (
	"testing"

	"stockcount/internal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IMPORT_COMMIT_MODE", "")
	t.Setenv("IMPORT_BATCH_SIZE", "")
	t.Setenv("CATALOG_BACKEND", "local")
	t.Setenv("SEARCH_CACHE_CAPACITY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ImportCommitMode != internal.CommitInsertOrSkip {
		t.Fatalf("mode=%s", cfg.ImportCommitMode)
	}
	if cfg.ImportBatchSize != 1000 {
		t.Fatalf("batch=%d", cfg.ImportBatchSize)
	}
	if cfg.SearchCacheCapacity != 50 {
		t.Fatalf("capacity=%d", cfg.SearchCacheCapacity)
	}
}

func TestLoadRejectsUnknownCommitMode(t *testing.T) {
	t.Setenv("IMPORT_COMMIT_MODE", "merge")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateBackend(t *testing.T) {
	cfg := Config{CatalogBackend: "cloud", ImportCommitMode: internal.CommitUpsert, ImportBatchSize: 1, SearchCacheCapacity: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for backend")
	}
	cfg.CatalogBackend = BackendRemote
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.ImportBatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for batch size")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("MAIL_ATTACHMENT_EXTS", "TXT, .csv,,")
	got := getEnvList("MAIL_ATTACHMENT_EXTS", nil)
	if len(got) != 2 || got[0] != ".txt" || got[1] != ".csv" {
		t.Fatalf("got=%v", got)
	}
}
