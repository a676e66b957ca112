package office

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

// XLSXReader flattens every sheet into tab-separated rows under a sheet heading.
type XLSXReader struct {
	maxRows int
}

func NewXLSXReader(maxRows int) *XLSXReader {
	if maxRows <= 0 {
		maxRows = 2000
	}
	return &XLSXReader{maxRows: maxRows}
}

func (r *XLSXReader) Read(_ context.Context, _ *domain.Artifact, raw []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open xlsx", err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n", sheet)
		for i, row := range rows {
			if i >= r.maxRows {
				break
			}
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}
