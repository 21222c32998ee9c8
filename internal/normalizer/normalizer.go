// Package normalizer reshapes the nested genotyping service response into the
// flat, row-aligned label/value table the report renderer writes out.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hivdr-report/internal/domain"
)

// Normalizer turns an AnalysisResponse into per-sequence reports
type Normalizer struct {
	logger *logrus.Logger
}

// New creates a new Normalizer
func New(logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Normalizer{logger: logger}
}

// Normalize returns the report of the first sequence in the response. A run
// normally carries exactly one sequence.
func (n *Normalizer) Normalize(resp *domain.AnalysisResponse) (*domain.Report, error) {
	reports, err := n.NormalizeAll(resp)
	if err != nil {
		return nil, err
	}
	return reports[0], nil
}

// NormalizeAll returns one report per analyzed sequence, in response order
func (n *Normalizer) NormalizeAll(resp *domain.AnalysisResponse) ([]*domain.Report, error) {
	if resp == nil || len(resp.Sequences) == 0 {
		return nil, domain.NewEmptyInputError("service returned no sequence analysis")
	}

	reports := make([]*domain.Report, 0, len(resp.Sequences))
	for _, seq := range resp.Sequences {
		report, err := n.normalizeSequence(seq, resp.DatabaseVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize sequence %q: %w", seq.Header, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (n *Normalizer) normalizeSequence(seq domain.SequenceResult, databaseVersion string) (*domain.Report, error) {
	var classes []domain.DrugClass
	for _, gene := range seq.Genes {
		geneClasses, err := classify(gene).drugClasses()
		if err != nil {
			return nil, err
		}
		n.logger.WithFields(logrus.Fields{
			"sequence":     seq.Header,
			"gene":         gene.Name,
			"drug_classes": len(geneClasses),
		}).Debug("Normalized gene")
		classes = append(classes, geneClasses...)
	}

	first, second := materialize(classes)
	if err := verifyAlignment(classes, first, second); err != nil {
		return nil, err
	}

	return &domain.Report{
		Header:            seq.Header,
		DatabaseVersion:   databaseVersion,
		Subtype:           seq.Subtype,
		Validation:        seq.Validation,
		ValidationSummary: summarizeValidation(seq.Validation),
		Classes:           classes,
		FirstColumn:       first,
		SecondColumn:      second,
	}, nil
}

// materialize lays out one label row and one value row per drug class. The bare
// "Other" class has no leading class-name cell.
func materialize(classes []domain.DrugClass) (first, second [][]string) {
	first = make([][]string, 0, len(classes))
	second = make([][]string, 0, len(classes))

	for _, class := range classes {
		var labels, values []string
		// The RT Other row is named OtherRTClassName and keeps its class-name cell.
		if class.Name != domain.MutationTypeOther {
			labels = append(labels, domain.DrugClassNameLabel)
			values = append(values, class.Name)
		}
		labels = append(labels, class.Mutations.Labels()...)
		values = append(values, class.Mutations.Values()...)
		labels = append(labels, class.Drugs.Labels()...)
		values = append(values, class.Drugs.Values()...)
		labels = append(labels, domain.CommentsLabel)
		values = append(values, class.Comments)

		first = append(first, labels)
		second = append(second, values)
	}
	return first, second
}

func verifyAlignment(classes []domain.DrugClass, first, second [][]string) error {
	if len(first) != len(second) || len(first) != len(classes) {
		return &domain.MisalignedRowsError{Row: -1, FirstCount: len(first), SecondCount: len(second)}
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			return &domain.MisalignedRowsError{
				Gene:        classes[i].Gene,
				DrugClass:   classes[i].Name,
				Row:         i,
				FirstCount:  len(first[i]),
				SecondCount: len(second[i]),
			}
		}
	}
	return nil
}

func summarizeValidation(messages []domain.ValidationMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}
