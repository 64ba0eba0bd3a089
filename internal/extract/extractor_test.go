package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/hyperjump/kessan/internal/models"
)

// writePDF renders one page per entry in pages using a core font.
func writePDF(t *testing.T, path string, pages ...string) {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	for _, text := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.Cell(0, 10, text)
	}
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
}

func TestExtractPages_pdf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Apple_2023_Q1.pdf")
	writePDF(t, path, "Revenue was 100B.", "Risk Factors apply.")

	pages, err := NewExtractor().ExtractPages(path)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[1].Number != 2 {
		t.Errorf("page numbers: %d, %d", pages[0].Number, pages[1].Number)
	}
	if !strings.Contains(pages[0].Text, "Revenue") {
		t.Errorf("page 1 text = %q", pages[0].Text)
	}
	if !strings.Contains(pages[1].Text, "Risk") {
		t.Errorf("page 2 text = %q", pages[1].Text)
	}
}

func TestExtractPages_nonexistent(t *testing.T) {
	_, err := NewExtractor().ExtractPages("/nonexistent/path/Apple_2023_Q1.pdf")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractPages_disabledExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := NewExtractor().ExtractPages(path)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for .txt with default extensions, got %v", err)
	}
}

func TestExtractPages_tooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 64), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor(WithExtensions([]string{"txt"}), WithMaxFileSize(32))
	_, err := e.ExtractPages(path)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractPages_plainFormFeedPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("first page\fsecond page\f  "), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor(WithExtensions([]string{".txt"}))
	pages, err := e.ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[1].Text != "second page" || pages[1].Number != 2 {
		t.Errorf("page 2 = %+v", pages[1])
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	pages, err := NewExtractor().ExtractBytes([]byte{'a', 0xff, 'b'}, ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].Text != "a\ufffdb" {
		t.Errorf("got %q", pages[0].Text)
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("raw"), ".xyz")
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWithExtensions_ignoresUnsupported(t *testing.T) {
	e := NewExtractor(WithExtensions([]string{".PDF", ".exe"}))
	if !e.Accepts("report.pdf") {
		t.Error("expected .pdf accepted")
	}
	if e.Accepts("tool.exe") {
		t.Error("expected .exe rejected")
	}
}

// minimalDocx returns a minimal .docx zip whose body has one paragraph per entry.
func minimalDocx(paragraphs ...string) []byte {
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p w:rsidR="00A1"><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_docx(t *testing.T) {
	pages, err := NewExtractor().ExtractBytes(minimalDocx("Executive Summary", "Revenue &amp; margin grew."), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected single page, got %d", len(pages))
	}
	if want := "Executive Summary\n\nRevenue & margin grew."; pages[0].Text != want {
		t.Errorf("got %q, want %q", pages[0].Text, want)
	}
}

func TestExtractBytes_docxSplitRuns(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Reve</w:t></w:r><w:r><w:t xml:space="preserve">nue up</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()

	pages, err := NewExtractor().ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].Text != "Revenue up" {
		t.Errorf("got %q", pages[0].Text)
	}
}

func TestExtractBytes_docxContentTypesReversedOrder(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document3.xml"/>
</Types>`))
	fw, _ := w.Create("word/document3.xml")
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Reversed order test</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()

	pages, err := NewExtractor().ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if pages[0].Text != "Reversed order test" {
		t.Errorf("got %q", pages[0].Text)
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("plain"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
}
