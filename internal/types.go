package internal

import (
	"fmt"
	"strings"
	"time"
)

// NoBarcode marks a catalog line whose product has no real barcode.
const NoBarcode = "0000000000000"

// MaxDescriptionLen is the number of characters kept from a product description.
const MaxDescriptionLen = 200

type Product struct {
	ID          string    `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

type ProductInput struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ProductPage struct {
	Items      []Product `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

// RawImportLine is one well-formed line of a catalog file, before normalization.
type RawImportLine struct {
	LineNo       int
	InternalCode string
	Barcode      string
	Description  string
	Extra        []string
}

type NormalizedCandidate struct {
	LineNo      int
	Key         string
	Description string
}

func (c NormalizedCandidate) Input() ProductInput {
	return ProductInput{Code: c.Key, Description: c.Description}
}

type CommitMode string

const (
	CommitInsertOrSkip CommitMode = "insert-or-skip"
	CommitUpsert       CommitMode = "upsert"
)

func ParseCommitMode(value string) (CommitMode, error) {
	switch CommitMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", CommitInsertOrSkip:
		return CommitInsertOrSkip, nil
	case CommitUpsert:
		return CommitUpsert, nil
	default:
		return "", fmt.Errorf("unsupported commit mode: %s", value)
	}
}

type ImportSummary struct {
	TotalCandidates int `json:"totalCandidates"`
	Imported        int `json:"imported"`
	SkippedExisting int `json:"skippedExisting"`
	SkippedFailed   int `json:"skippedFailed"`
}

func (s ImportSummary) Message() string {
	if s.TotalCandidates == 0 {
		return "No valid products found"
	}
	msg := fmt.Sprintf("Successfully imported %d products", s.Imported)
	if s.SkippedExisting > 0 {
		msg += fmt.Sprintf(", %d already existed", s.SkippedExisting)
	}
	if s.SkippedFailed > 0 {
		msg += fmt.Sprintf(", %d failed", s.SkippedFailed)
	}
	return msg
}

type ImportRun struct {
	TraceID      string        `json:"traceId" db:"trace_id"`
	Source       string        `json:"source" db:"source"`
	Mode         CommitMode    `json:"mode" db:"mode"`
	Summary      ImportSummary `json:"summary"`
	DroppedLines int           `json:"droppedLines" db:"dropped_lines"`
	DurationMs   int64         `json:"durationMs" db:"duration_ms"`
	Error        string        `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

type StockItem struct {
	ID        string    `json:"id" db:"id"`
	Barcode   string    `json:"barcode" db:"barcode"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
