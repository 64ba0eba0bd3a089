package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kessan/internal/models"
	"github.com/hyperjump/kessan/pkg/utils"
)

const (
	maxSheetName = 31
	defaultSheet = "Sheet1"
	qaSheet      = "Q&A Analysis"
	metaSheet    = "Metadata"
	sourceSheet  = "Source Info"
)

// workbook tracks sheet names so every sheet gets a unique valid name.
type workbook struct {
	f    *excelize.File
	used map[string]bool
}

func writeExcel(path string, env *models.Envelope, now time.Time) error {
	wb := &workbook{f: excelize.NewFile(), used: make(map[string]bool)}
	defer wb.f.Close()

	res := env.Result
	if env.AnalysisType == models.KindQA {
		err := wb.table(qaSheet, []string{"Question", "Answer", "Source Documents", "Companies", "Quarters"},
			[]any{res.Question, res.Answer, res.SourceDocuments, strings.Join(res.Companies, ", "), strings.Join(res.Quarters, ", ")})
		if err != nil {
			return err
		}
	} else {
		for _, s := range parseSections(env.AnalysisType, res.Text()) {
			if err := wb.table(s.name, []string{"Section", "Content"}, []any{s.name, s.content}); err != nil {
				return err
			}
		}
	}
	if err := wb.fields(metaSheet, metadataFields(env, now)); err != nil {
		return err
	}
	if err := wb.fields(sourceSheet, sourceFields(res)); err != nil {
		return err
	}

	if err := wb.f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	wb.f.SetActiveSheet(0)
	if err := wb.f.SaveAs(path); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	return nil
}

func (wb *workbook) sheet(name string) (string, error) {
	name = wb.uniqueName(sheetName(name))
	if _, err := wb.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("export excel: create sheet %q: %w", name, err)
	}
	wb.used[strings.ToLower(name)] = true
	return name, nil
}

func (wb *workbook) table(name string, header []string, row []any) error {
	sheet, err := wb.sheet(name)
	if err != nil {
		return err
	}
	if err := wb.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	if err := wb.f.SetSheetRow(sheet, "A2", &row); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	return nil
}

func (wb *workbook) fields(name string, fields []field) error {
	sheet, err := wb.sheet(name)
	if err != nil {
		return err
	}
	if err := wb.f.SetSheetRow(sheet, "A1", &[]string{"Field", "Value"}); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	for i, fd := range fields {
		cell := "A" + strconv.Itoa(i+2)
		if err := wb.f.SetSheetRow(sheet, cell, &[]string{fd.name, fd.value}); err != nil {
			return fmt.Errorf("export excel: %w", err)
		}
	}
	return nil
}

// uniqueName appends " (n)" until name is unused, staying within the sheet name limit.
// The default sheet counts as used until it is deleted.
func (wb *workbook) uniqueName(name string) string {
	taken := func(n string) bool {
		return wb.used[strings.ToLower(n)] || strings.EqualFold(n, defaultSheet)
	}
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate := utils.Head(name, maxSheetName-len(suffix)) + suffix
		if !taken(candidate) {
			return candidate
		}
	}
}

// sheetName strips characters Excel rejects in sheet names and caps the length.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, s)
	s = strings.Trim(strings.TrimSpace(s), "'")
	s = strings.TrimSpace(utils.Head(s, maxSheetName))
	if s == "" {
		return "Section"
	}
	return s
}
