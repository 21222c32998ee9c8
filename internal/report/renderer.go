// Package report renders normalized resistance reports as an xlsx workbook,
// one worksheet per sequence.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/hivdr-report/internal/domain"
	"github.com/hivdr-report/internal/labels"
)

const (
	labelColumnWidth = 40
	valueColumnWidth = 30
	maxSheetName     = 31
	timestampLayout  = "2006-01-02 15:04:05"
	defaultSheet     = "Sheet1"
)

var sheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")",
)

// Renderer writes reports to spreadsheet files
type Renderer struct {
	translator *labels.Translator
	logger     *logrus.Logger
}

// NewRenderer creates a renderer that localizes labels with translator
func NewRenderer(translator *labels.Translator, logger *logrus.Logger) *Renderer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Renderer{translator: translator, logger: logger}
}

type styles struct {
	caption int
	class   int
	label   int
	value   int
}

// Render writes one worksheet per report to path
func (r *Renderer) Render(path string, reports []*domain.Report, meta domain.RunMetadata) error {
	if len(reports) == 0 {
		return domain.NewEmptyInputError("no reports to render")
	}

	f := excelize.NewFile()
	defer f.Close()

	st, err := r.newStyles(f)
	if err != nil {
		return &domain.OutputWriteError{Path: path, RunID: meta.RunID, Err: err}
	}

	used := make(map[string]bool, len(reports))
	for i, rep := range reports {
		name := uniqueSheetName(rep.Header, i, used)
		if i == 0 {
			err = f.SetSheetName(defaultSheet, name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			return &domain.OutputWriteError{Path: path, RunID: meta.RunID, Err: err}
		}
		if err := r.writeSheet(f, name, rep, meta, st); err != nil {
			return &domain.OutputWriteError{Path: path, RunID: meta.RunID, Err: err}
		}
	}
	f.SetActiveSheet(0)

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:    r.translator.Caption(labels.KeyReportTitle),
		Creator:  "hivdr-report",
		Language: r.translator.Language().String(),
	}); err != nil {
		r.logger.WithError(err).Warn("Failed to set workbook properties")
	}

	if err := f.SaveAs(path); err != nil {
		return &domain.OutputWriteError{Path: path, RunID: meta.RunID, Err: err}
	}

	r.logger.WithFields(logrus.Fields{
		"path":   path,
		"sheets": len(reports),
	}).Info("Report written")
	return nil
}

func (r *Renderer) newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error

	wrapTop := &excelize.Alignment{WrapText: true, Vertical: "top"}

	if st.caption, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
		Alignment: &excelize.Alignment{Vertical: "center"},
	}); err != nil {
		return st, err
	}
	if st.class, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: wrapTop,
	}); err != nil {
		return st, err
	}
	if st.label, err = f.NewStyle(&excelize.Style{Alignment: wrapTop}); err != nil {
		return st, err
	}
	st.value = st.label
	return st, nil
}

func (r *Renderer) writeSheet(f *excelize.File, sheet string, rep *domain.Report, meta domain.RunMetadata, st styles) error {
	if err := f.SetColWidth(sheet, "A", "A", labelColumnWidth); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", valueColumnWidth); err != nil {
		return err
	}

	row := 1
	if err := r.setRow(f, sheet, row,
		r.translator.Caption(labels.KeyCaptionName),
		r.translator.Caption(labels.KeyCaptionResult),
		st.caption, st.caption); err != nil {
		return err
	}
	row++

	sequence := rep.Header
	if meta.InputName != "" {
		sequence = fmt.Sprintf("%s (%s)", rep.Header, meta.InputName)
	}
	queriedAt := ""
	if !meta.QueriedAt.IsZero() {
		queriedAt = meta.QueriedAt.Local().Format(timestampLayout)
	}

	header := []struct {
		key   labels.Key
		value string
	}{
		{labels.KeyCaptionQueriedAt, queriedAt},
		{labels.KeyCaptionDatabase, rep.DatabaseVersion},
		{labels.KeyCaptionSequence, sequence},
		{labels.KeyCaptionSubtype, rep.Subtype},
		{labels.KeyCaptionValidation, rep.ValidationSummary},
	}
	for _, h := range header {
		if err := r.setRow(f, sheet, row, r.translator.Caption(h.key), h.value, st.class, st.value); err != nil {
			return err
		}
		row++
	}

	// blank separator
	row++

	for _, group := range rep.Rows() {
		for _, e := range group.Entries {
			labelStyle, valueStyle := st.label, st.value
			if e.Label == domain.DrugClassNameLabel {
				labelStyle, valueStyle = st.class, st.class
			}
			if err := r.setRow(f, sheet, row,
				r.translator.Label(e.Label), r.translator.Value(e.Value),
				labelStyle, valueStyle); err != nil {
				return err
			}
			row++
		}
		row++
	}
	return nil
}

func (r *Renderer) setRow(f *excelize.File, sheet string, row int, label, value string, labelStyle, valueStyle int) error {
	a, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	b, err := excelize.CoordinatesToCellName(2, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, a, label); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, b, value); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, a, a, labelStyle); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, b, b, valueStyle)
}

// uniqueSheetName derives a valid worksheet name from a sequence header
func uniqueSheetName(header string, index int, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameReplacer.Replace(header))
	base = strings.Trim(base, "'")
	if base == "" {
		base = fmt.Sprintf("Sequence %d", index+1)
	}
	base = truncateRunes(base, maxSheetName)

	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
