// Package extractor picks a source reader for an artifact by its type and,
// for documents and pages, by the content itself.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/extractor/office"
	"github.com/kirillkom/brand-soul/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/brand-soul/internal/infrastructure/extractor/web"
)

type Router struct {
	html  ports.SourceReader
	plain ports.SourceReader
	pdf   ports.SourceReader
	xlsx  ports.SourceReader
}

func NewRouter() *Router {
	return &Router{
		html:  web.NewReader(),
		plain: plaintext.NewReader(),
		pdf:   office.NewPDFReader(),
		xlsx:  office.NewXLSXReader(0),
	}
}

func (r *Router) Read(ctx context.Context, artifact *domain.Artifact, raw []byte) (string, error) {
	reader, err := r.readerFor(artifact, raw)
	if err != nil {
		return "", err
	}
	return reader.Read(ctx, artifact, raw)
}

func (r *Router) readerFor(artifact *domain.Artifact, raw []byte) (ports.SourceReader, error) {
	kind := contentKind(artifact.MimeType, raw)
	switch artifact.Type {
	case domain.ArtifactWebsite, domain.ArtifactSocial:
		if kind == kindHTML {
			return r.html, nil
		}
		return r.plain, nil
	case domain.ArtifactDocument:
		switch kind {
		case kindPDF:
			return r.pdf, nil
		case kindXLSX:
			return r.xlsx, nil
		case kindHTML:
			return r.html, nil
		default:
			return r.plain, nil
		}
	case domain.ArtifactText, domain.ArtifactImage, domain.ArtifactVideo:
		return r.plain, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "select source reader",
			fmt.Errorf("unsupported artifact type %q", artifact.Type))
	}
}

const (
	kindText = "text"
	kindHTML = "html"
	kindPDF  = "pdf"
	kindXLSX = "xlsx"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func contentKind(mimeType string, raw []byte) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "application/pdf"):
		return kindPDF
	case strings.HasPrefix(mimeType, xlsxMime):
		return kindXLSX
	case strings.Contains(mimeType, "html"):
		return kindHTML
	}

	if bytes.HasPrefix(raw, []byte("%PDF-")) {
		return kindPDF
	}
	// XLSX files are zip archives; the sniffed type is only trusted alongside
	// a spreadsheet extension or mime hint.
	if bytes.HasPrefix(raw, []byte("PK\x03\x04")) && strings.Contains(mimeType, "spreadsheet") {
		return kindXLSX
	}
	if strings.HasPrefix(http.DetectContentType(raw), "text/html") {
		return kindHTML
	}
	return kindText
}
