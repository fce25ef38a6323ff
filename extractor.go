package pdfquiz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const pdfMIME = "application/pdf"

// Document is an uploaded file held in memory
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the document length in bytes
func (d Document) Size() int {
	return len(d.Data)
}

// NewDocument wraps raw bytes and sniffs their content type
func NewDocument(name string, data []byte) Document {
	return Document{
		Name:        name,
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}
}

// LoadDocument reads at most limit bytes from r. limit <= 0 means no limit.
func LoadDocument(name string, r io.Reader, limit int64) (Document, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, newError(KindReadFailed, err, "failed to read %s", name)
	}
	if limit > 0 && int64(len(data)) > limit {
		return Document{}, InvalidInput("%s is larger than %d MB", name, limit>>20)
	}
	return NewDocument(name, data), nil
}

// ValidateDocument accepts only non-empty PDF files
func ValidateDocument(doc Document) error {
	if len(doc.Data) == 0 {
		return InvalidInput("please select a valid PDF file")
	}
	if !mimetype.Detect(doc.Data).Is(pdfMIME) {
		return InvalidInput("please select a valid PDF file (got %s)", doc.ContentType)
	}
	return nil
}

// TextExtractor turns a document into a single block of plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, doc Document) (string, error)
}

// PDFExtractor extracts page text from PDF documents
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF text extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText returns every page's text, whitespace collapsed, pages separated by a blank line.
func (e *PDFExtractor) ExtractText(ctx context.Context, doc Document) (text string, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = newError(KindExtractionFailed, fmt.Errorf("%v", r), "no text could be extracted from the PDF")
		}
	}()

	if len(doc.Data) == 0 {
		return "", newError(KindReadFailed, nil, "%s is empty", doc.Name)
	}

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", newError(KindReadFailed, err, "failed to read the PDF file")
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		raw, perr := page.GetPlainText(nil)
		if perr != nil {
			VerboseLog("Skipping page %d of %s: %v", i, doc.Name, perr)
			continue
		}
		pageText := strings.Join(strings.Fields(raw), " ")
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	text = sb.String()
	if strings.TrimSpace(text) == "" {
		return "", newError(KindExtractionFailed, nil, "no text could be extracted from the PDF")
	}
	VerboseLog("Extracted %d characters from %d pages of %s", len(text), numPages, doc.Name)
	return text, nil
}
