package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stockcount/internal"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendMemory = "memory"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	CatalogBackend string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ImportCommitMode internal.CommitMode
	ImportBatchSize  int

	SearchCacheCapacity int
	SearchResultLimit   int
	AutocompleteLimit   int
	SearchCoalesce      bool
	ProductsPageSize    int

	ExportTimezone string

	HTTPAddr string
	GinMode  string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	CatalogFeedURL       string
	CatalogFeedToken     string
	CatalogFeedRPS       int
	CatalogFeedTimeoutMs int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerFeedSync     bool
	MailAttachmentExts       []string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	mode, err := internal.ParseCommitMode(getEnv("IMPORT_COMMIT_MODE", string(internal.CommitInsertOrSkip)))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		CatalogBackend: strings.ToLower(getEnv("CATALOG_BACKEND", BackendLocal)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "stockcount"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ImportCommitMode: mode,
		ImportBatchSize:  getEnvInt("IMPORT_BATCH_SIZE", 1000),

		SearchCacheCapacity: getEnvInt("SEARCH_CACHE_CAPACITY", 50),
		SearchResultLimit:   getEnvInt("SEARCH_RESULT_LIMIT", 50),
		AutocompleteLimit:   getEnvInt("AUTOCOMPLETE_LIMIT", 5),
		SearchCoalesce:      getEnvBool("SEARCH_COALESCE", true),
		ProductsPageSize:    getEnvInt("PRODUCTS_PAGE_SIZE", 100),

		ExportTimezone: getEnv("EXPORT_TIMEZONE", "Local"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GinMode:  getEnv("GIN_MODE", "release"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:   getEnvBool("LOG_COMPRESS", false),

		CatalogFeedURL:       getEnv("CATALOG_FEED_URL", ""),
		CatalogFeedToken:     getEnv("CATALOG_FEED_TOKEN", ""),
		CatalogFeedRPS:       getEnvInt("CATALOG_FEED_RPS", 2),
		CatalogFeedTimeoutMs: getEnvInt("CATALOG_FEED_TIMEOUT_MS", 30000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "gmail"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerFeedSync:     getEnvBool("MAIL_LISTENER_FEED_SYNC", false),
		MailAttachmentExts:       getEnvList("MAIL_ATTACHMENT_EXTS", []string{".txt", ".csv", ".xlsx", ".pdf"}),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.CatalogBackend {
	case BackendLocal, BackendRemote, BackendMemory:
	default:
		return fmt.Errorf("unsupported CATALOG_BACKEND: %s", c.CatalogBackend)
	}
	if _, err := internal.ParseCommitMode(string(c.ImportCommitMode)); err != nil {
		return err
	}
	if c.ImportBatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.ImportBatchSize)
	}
	if c.SearchCacheCapacity <= 0 {
		return fmt.Errorf("SEARCH_CACHE_CAPACITY must be positive, got %d", c.SearchCacheCapacity)
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// Location resolves EXPORT_TIMEZONE, falling back to the local zone.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.ExportTimezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
