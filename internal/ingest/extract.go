package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ExtractText pulls plain text out of a file based on its extension. PDF
// goes through MuPDF, DOCX is unpacked directly, TXT is read as UTF-8.
// Anything else is rejected before ingestion.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	case ".txt":
		return extractPlain(path)
	default:
		return "", fmt.Errorf("type de fichier non supporté %q: seuls .pdf, .docx et .txt sont acceptés", ext)
	}
}

func extractPDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		page, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("extract pdf page %d: %w", n+1, err)
		}
		sb.WriteString(page)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// docxBody mirrors the parts of word/document.xml we care about: paragraphs
// of text runs.
type docxBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"body>p"`
}

func extractDOCX(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx document part: %w", err)
		}
		defer rc.Close()

		var body docxBody
		if err := xml.NewDecoder(rc).Decode(&body); err != nil {
			return "", fmt.Errorf("decode docx document part: %w", err)
		}

		var sb strings.Builder
		for _, p := range body.Paragraphs {
			for _, r := range p.Runs {
				sb.WriteString(r.Text)
			}
			sb.WriteString("\n\n")
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}

func extractPlain(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(content), nil
}
