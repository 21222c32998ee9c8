package domain

import "fmt"

// Sequence is one record loaded from a FASTA file
type Sequence struct {
	Header   string `json:"header"`
	Residues string `json:"sequence"`
}

// AnalysisResponse is the genotyping service result for one query batch
type AnalysisResponse struct {
	DatabaseVersion string           `json:"database_version"`
	Sequences       []SequenceResult `json:"sequences"`
}

// SequenceResult is the analysis of one input sequence
type SequenceResult struct {
	Header     string              `json:"header"`
	Subtype    string              `json:"subtype"`
	Validation []ValidationMessage `json:"validation,omitempty"`
	Genes      []GeneResult        `json:"genes"`
}

// ValidationMessage is a warning the service raised about the input sequence itself.
// Messages are collected into the report header, they never abort a run.
type ValidationMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// String formats the message as it appears in the report header
func (v ValidationMessage) String() string {
	return fmt.Sprintf("%s: %s", v.Level, v.Message)
}

// GeneResult holds resistance data for one viral gene
type GeneResult struct {
	Name           string          `json:"name"`
	DrugScores     []DrugScore     `json:"drug_scores"`
	MutationGroups []MutationGroup `json:"mutation_groups"`
	CommentGroups  []CommentGroup  `json:"comment_groups"`
}

// DrugScore is one drug's predicted susceptibility
type DrugScore struct {
	DrugClass string  `json:"drug_class"`
	DrugName  string  `json:"drug_name"`
	DrugAbbr  string  `json:"drug_abbr"`
	SIR       string  `json:"sir,omitempty"`
	Score     float64 `json:"score"`
	Level     int     `json:"level"`
	Text      string  `json:"text"`
}

// Label returns the drug's display label, e.g. "lamivudine (3TC)"
func (d DrugScore) Label() string {
	return d.DrugName + " (" + d.DrugAbbr + ")"
}

// MutationGroup lists the mutations sharing one mutation-type tag
type MutationGroup struct {
	Type      string   `json:"type"`
	Mutations []string `json:"mutations"`
}

// CommentGroup groups clinical comments by comment type
type CommentGroup struct {
	Type     string    `json:"type"`
	Comments []Comment `json:"comments"`
}

// Comment is a clinical annotation anchored to highlighted mutations
type Comment struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	Highlighted []string `json:"highlighted,omitempty"`
}

// HighlightedMutation returns the first highlighted mutation token, the only one used
// for keying comments.
func (c Comment) HighlightedMutation() (string, bool) {
	if len(c.Highlighted) == 0 || c.Highlighted[0] == "" {
		return "", false
	}
	return c.Highlighted[0], true
}

// Mutation types and gene names with special meaning to the report layout
const (
	MutationTypeOther = "Other"
	GeneRT            = "RT"
)
