package pipeline

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"stockcount/internal/util"
)

type SourceKind string

const (
	SourceText      SourceKind = "text"
	SourceXLSX      SourceKind = "xlsx"
	SourcePDF       SourceKind = "pdf"
	SourceHTMLTable SourceKind = "html_table"
	SourceBody      SourceKind = "body"
)

// CatalogSource is one piece of a message that reads as catalog text.
type CatalogSource struct {
	Name    string
	Kind    SourceKind
	Content string
}

type Extraction struct {
	Subject     string
	Attachments []string
	Sources     []CatalogSource
}

// DefaultAttachmentExts are the attachment types read when none are configured.
var DefaultAttachmentExts = []string{".txt", ".csv", ".xlsx", ".pdf"}

// ExtractCatalogSources pulls catalog text out of a raw message: allowed
// attachments first, then tables in the HTML body, then the plain body when
// it already holds `;`-separated lines. Unreadable attachments are skipped.
func ExtractCatalogSources(raw []byte, exts []string) (Extraction, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Extraction{}, err
	}
	if len(exts) == 0 {
		exts = DefaultAttachmentExts
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	out := Extraction{Subject: env.GetHeader("Subject")}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.Attachments = append(out.Attachments, filename)

		ext := strings.ToLower(filepath.Ext(filename))
		if _, ok := allowed[ext]; !ok {
			continue
		}

		var (
			content string
			kind    SourceKind
			err     error
		)
		switch ext {
		case ".xlsx", ".xlsm":
			content, err = xlsxToCatalogText(att.Content)
			kind = SourceXLSX
		case ".pdf":
			content, err = pdfToCatalogText(att.Content)
			kind = SourcePDF
		default:
			content, kind = decodeText(att.Content), SourceText
		}
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		out.Sources = append(out.Sources, CatalogSource{Name: filename, Kind: kind, Content: content})
	}

	if env.HTML != "" {
		if content := htmlTablesToCatalogText(env.HTML); content != "" {
			out.Sources = append(out.Sources, CatalogSource{Name: "body.html", Kind: SourceHTMLTable, Content: content})
		}
	}
	if len(out.Sources) == 0 && hasCatalogLines(env.Text) {
		out.Sources = append(out.Sources, CatalogSource{Name: "body.txt", Kind: SourceBody, Content: env.Text})
	}

	return out, nil
}

// decodeText strips a UTF-8 byte order mark and normalizes line endings.
func decodeText(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	return strings.ReplaceAll(string(b), "\r\n", "\n")
}

func hasCatalogLines(text string) bool {
	for range Parse(text) {
		return true
	}
	return false
}

// xlsxToCatalogText joins each non-empty row of every sheet with ';'.
func xlsxToCatalogText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := normalizeCells(row)
			if isBlankRow(cells) {
				continue
			}
			b.WriteString(strings.Join(cells, fieldSeparator))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func pdfToCatalogText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// htmlTablesToCatalogText turns every data row of every table into one
// `;`-joined line. Header-only rows are skipped.
func htmlTablesToCatalogText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var b strings.Builder
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			if row.Find("td").Length() == 0 {
				return
			}
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			cells = normalizeCells(cells)
			if len(cells) < minFields || isBlankRow(cells) {
				return
			}
			b.WriteString(strings.Join(cells, fieldSeparator))
			b.WriteByte('\n')
		})
	})
	return b.String()
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		// A separator inside a cell would shift every following field.
		out = append(out, strings.ReplaceAll(util.NormalizeSpaces(c), fieldSeparator, ","))
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
