package stock

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"stockcount/internal"
)

const (
	exportDateLayout = "20060102"
	exportTimeLayout = "150405"
)

// FormatExport renders one `YYYYMMDD;barcode;HHMMSS;quantity` line per item.
func FormatExport(items []internal.StockItem, loc *time.Location) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		ts := it.Timestamp.In(loc)
		lines = append(lines, fmt.Sprintf("%s;%s;%s;%d",
			ts.Format(exportDateLayout), it.Barcode, ts.Format(exportTimeLayout), it.Quantity))
	}
	return strings.Join(lines, "\n")
}

func ExportFileName(now time.Time) string {
	return fmt.Sprintf("contagem_estoque_%s_%s.txt", now.Format(exportDateLayout), now.Format(exportTimeLayout))
}

// ExportText returns the file name and content of the current count.
func (s *Service) ExportText(ctx context.Context) (string, string, error) {
	items, err := s.store.ListStockItems(ctx)
	if err != nil {
		return "", "", err
	}
	if len(items) == 0 {
		return "", "", ErrEmptyCount
	}
	return ExportFileName(s.now().In(s.loc)), FormatExport(items, s.loc), nil
}

// Export writes the count file into dir and returns its path.
func (s *Service) Export(ctx context.Context, dir string) (string, error) {
	name, content, err := s.ExportText(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	s.log.WithField("path", path).Info("stock count exported")
	return path, nil
}

// WriteXLSX writes the count as a spreadsheet, with catalog descriptions.
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer) error {
	items, err := s.store.ListStockItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrEmptyCount
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{"data", "codigo_barras", "hora", "quantidade", "descricao"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	descriptions := map[string]string{}
	for i, it := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		desc, ok := descriptions[it.Barcode]
		if !ok && s.products != nil {
			if p, err := s.products.FindProductByCode(ctx, strings.ToUpper(it.Barcode)); err == nil && p != nil {
				desc = p.Description
			}
			descriptions[it.Barcode] = desc
		}

		ts := it.Timestamp.In(s.loc)
		set(1, ts.Format(exportDateLayout))
		// Stored as text so long barcodes keep every digit.
		set(2, it.Barcode)
		set(3, ts.Format(exportTimeLayout))
		set(4, it.Quantity)
		set(5, desc)
	}

	_, err = f.WriteTo(w)
	return err
}

func (s *Service) ExportXLSX(ctx context.Context, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := s.WriteXLSX(ctx, out); err != nil {
		_ = out.Close()
		_ = os.Remove(outputPath)
		return err
	}
	return out.Close()
}

// XLSXFileName names a spreadsheet export taken now.
func (s *Service) XLSXFileName() string {
	return strings.TrimSuffix(ExportFileName(s.now().In(s.loc)), ".txt") + ".xlsx"
}
