// Package extraction converts source files into plain text documents for
// ingestion. Supported: txt, md, pdf, json, html.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedType indicates a file extension with no extractor.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrExtractionFailed indicates the file could not be read or parsed.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Document is the extraction output handed to the ingestion pipeline.
type Document struct {
	// Text is the extracted plain text.
	Text string

	// Type is the source format: "text", "pdf", "json", "html".
	Type string

	// Metadata carries at least "filename" and "type".
	Metadata map[string]interface{}
}

// Extractor turns files into Documents.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Supported reports whether the file extension has an extractor.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf", ".json", ".html", ".htm":
		return true
	default:
		return false
	}
}

// ExtractFile reads and extracts a single file.
func (e *Extractor) ExtractFile(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	filename := filepath.Base(path)

	var (
		doc *Document
		err error
	)
	switch ext {
	case ".txt", ".md":
		doc, err = e.extractText(path)
	case ".pdf":
		doc, err = e.extractPDF(path)
	case ".json":
		doc, err = e.extractJSON(path)
	case ".html", ".htm":
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, filename, err)
			break
		}
		doc, err = e.ExtractHTML(string(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	if err != nil {
		return nil, err
	}

	doc.Metadata["filename"] = filename
	e.logger.Debug("extracted document",
		zap.String("filename", filename),
		zap.String("type", doc.Type),
		zap.Int("text_len", len(doc.Text)),
	)
	return doc, nil
}

// ExtractAll extracts every supported file, skipping failures and
// unsupported extensions. The returned documents keep input order.
func (e *Extractor) ExtractAll(paths []string) []Document {
	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		if !Supported(path) {
			e.logger.Warn("skipping unsupported file", zap.String("path", path))
			continue
		}
		doc, err := e.ExtractFile(path)
		if err != nil {
			e.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

func (e *Extractor) extractText(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, path, err)
	}
	return &Document{
		Text:     string(data),
		Type:     "text",
		Metadata: map[string]interface{}{"type": "text"},
	}, nil
}

func (e *Extractor) extractPDF(path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf %s: %v", ErrExtractionFailed, path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: reading pdf text %s: %v", ErrExtractionFailed, path, err)
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return nil, fmt.Errorf("%w: reading pdf buffer %s: %v", ErrExtractionFailed, path, err)
	}

	return &Document{
		Text:     buf.String(),
		Type:     "pdf",
		Metadata: map[string]interface{}{"type": "pdf"},
	}, nil
}

func (e *Extractor) extractJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, path, err)
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing json %s: %v", ErrExtractionFailed, path, err)
	}

	// Re-marshal indented so chunk boundaries fall on structural lines.
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: formatting json %s: %v", ErrExtractionFailed, path, err)
	}

	return &Document{
		Text:     string(pretty),
		Type:     "json",
		Metadata: map[string]interface{}{"type": "json"},
	}, nil
}

// Selectors is the element inventory parsed from an HTML document, used to
// ground generated Selenium scripts in selectors that actually exist.
type Selectors struct {
	IDs     []string `json:"ids"`
	Names   []string `json:"names"`
	Classes []string `json:"classes"`
}

// ExtractHTML extracts visible text and the selector inventory from raw HTML.
func (e *Extractor) ExtractHTML(content string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %v", ErrExtractionFailed, err)
	}

	doc.Find("script, style").Remove()
	text := strings.TrimSpace(doc.Text())

	return &Document{
		Text:     text,
		Type:     "html",
		Metadata: map[string]interface{}{"type": "html"},
	}, nil
}

// ParseSelectors collects distinct id, name and class attributes.
func ParseSelectors(doc *goquery.Document) Selectors {
	var sel Selectors
	seenID := map[string]bool{}
	seenName := map[string]bool{}
	seenClass := map[string]bool{}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok && id != "" && !seenID[id] {
			seenID[id] = true
			sel.IDs = append(sel.IDs, id)
		}
		if name, ok := s.Attr("name"); ok && name != "" && !seenName[name] {
			seenName[name] = true
			sel.Names = append(sel.Names, name)
		}
		if class, ok := s.Attr("class"); ok {
			for _, c := range strings.Fields(class) {
				if !seenClass[c] {
					seenClass[c] = true
					sel.Classes = append(sel.Classes, c)
				}
			}
		}
	})

	return sel
}

// ParseSelectorsFromString parses selectors out of raw HTML content.
func ParseSelectorsFromString(content string) (Selectors, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return Selectors{}, fmt.Errorf("%w: parsing html: %v", ErrExtractionFailed, err)
	}
	return ParseSelectors(doc), nil
}
