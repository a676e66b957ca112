package office

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func TestXLSXReaderFlattensSheets(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetCellValue("Sheet1", "A1", "Product"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	_ = book.SetCellValue("Sheet1", "B1", "Tagline")
	_ = book.SetCellValue("Sheet1", "A2", "Espresso")
	_ = book.SetCellValue("Sheet1", "B2", "Bold by nature")
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	text, err := NewXLSXReader(0).Read(context.Background(), &domain.Artifact{}, buf.Bytes())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := "## Sheet1\nProduct\tTagline\nEspresso\tBold by nature"
	if text != want {
		t.Fatalf("Read() = %q, want %q", text, want)
	}
}

func TestXLSXReaderRejectsGarbage(t *testing.T) {
	_, err := NewXLSXReader(0).Read(context.Background(), &domain.Artifact{}, []byte("not a zip"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPDFReaderRejectsGarbage(t *testing.T) {
	_, err := NewPDFReader().Read(context.Background(), &domain.Artifact{}, []byte("%PDF-1.4 truncated"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
