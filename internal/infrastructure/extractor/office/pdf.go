package office

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (r *PDFReader) Read(_ context.Context, _ *domain.Artifact, raw []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = domain.WrapError(domain.ErrInvalidInput, "read pdf", fmt.Errorf("malformed pdf: %v", rec))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "read pdf text", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(bytes.TrimSpace(out)), nil
}
