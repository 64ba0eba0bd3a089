package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/hyperjump/kessan/internal/models"
)

const (
	lineHeight = 6.0
	labelWidth = 45.0
	valueWidth = 135.0
)

// pdfReport lays out one analysis report. Text goes through a cp1252
// translator because the core fonts are not Unicode.
type pdfReport struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func writePDF(path string, env *models.Envelope, now time.Time) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Kessan "+env.AnalysisType.Title()+" Analysis", true)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()
	r := &pdfReport{pdf: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}

	r.heading1(fmt.Sprintf("Kessan - %s Analysis", env.AnalysisType.Title()))
	r.heading2("Analysis Information")
	r.tableHeader("Field", "Value")
	for _, f := range metadataFields(env, now) {
		r.row(f.name, f.value)
	}
	doc.Ln(lineHeight)

	res := env.Result
	switch env.AnalysisType {
	case models.KindInsight:
		r.body("Financial Insights Analysis", res.Insights, "No insights available")
	case models.KindCompare:
		r.body("Comparative Analysis", res.Comparison, "No comparison available")
	case models.KindRisk:
		r.body("Risk Analysis", res.RiskAnalysis, "No risk analysis available")
		if len(res.RiskKeywords) > 0 {
			r.paragraph("Risk keywords: " + strings.Join(res.RiskKeywords, ", "))
		}
	case models.KindQA:
		r.heading2("Question & Answer Analysis")
		if res.Answer == "" {
			r.paragraph("No Q&A available")
			break
		}
		r.row("Question", res.Question)
		r.row("Answer", res.Answer)
		doc.Ln(lineHeight)
		r.heading2("Source Information")
		for _, f := range sourceFields(res) {
			r.row(f.name, f.value)
		}
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export pdf: %w", err)
	}
	return nil
}

func (r *pdfReport) heading1(text string) {
	r.pdf.SetFont("Helvetica", "B", 16)
	r.pdf.SetTextColor(0, 0, 139)
	r.pdf.CellFormat(0, 10, r.tr(text), "", 1, "L", false, 0, "")
	r.pdf.Ln(4)
}

func (r *pdfReport) heading2(text string) {
	r.pdf.SetFont("Helvetica", "B", 14)
	r.pdf.SetTextColor(0, 0, 139)
	r.pdf.CellFormat(0, 8, r.tr(text), "", 1, "L", false, 0, "")
	r.pdf.Ln(2)
}

func (r *pdfReport) paragraph(text string) {
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.MultiCell(0, 5, r.tr(text), "", "L", false)
	r.pdf.Ln(2)
}

func (r *pdfReport) body(title, text, empty string) {
	r.heading2(title)
	if strings.TrimSpace(text) == "" {
		r.paragraph(empty)
		return
	}
	r.paragraph(text)
}

func (r *pdfReport) tableHeader(label, value string) {
	r.pdf.SetFont("Helvetica", "B", 10)
	r.pdf.SetFillColor(128, 128, 128)
	r.pdf.SetTextColor(245, 245, 245)
	r.pdf.CellFormat(labelWidth, lineHeight+2, r.tr(label), "1", 0, "L", true, 0, "")
	r.pdf.CellFormat(valueWidth, lineHeight+2, r.tr(value), "1", 1, "L", true, 0, "")
}

// row draws a wrapped value cell and a label cell stretched to its height.
func (r *pdfReport) row(label, value string) {
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.SetFillColor(245, 245, 220)
	x, y := r.pdf.GetXY()
	r.pdf.SetX(x + labelWidth)
	r.pdf.MultiCell(valueWidth, lineHeight, r.tr(value), "1", "L", true)
	end := r.pdf.GetY()
	if end <= y {
		// the value spilled onto a new page
		return
	}
	r.pdf.SetXY(x, y)
	r.pdf.CellFormat(labelWidth, end-y, r.tr(label), "1", 0, "LT", true, 0, "")
	r.pdf.SetXY(x, end)
}
