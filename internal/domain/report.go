package domain

import "time"

// Fixed report vocabulary. Labels and values in this set are translated by the
// labels package; everything else is rendered verbatim.
const (
	DrugClassNameLabel = "Drug Class Name"
	CommentsLabel      = "comments"
	NoComments         = "no comments"
	NoMutations        = "none"
	OtherRTClassName   = "Other Reverse Transcriptase (RT) Mutations"
)

// Entry is one label/value pair of a report row group
type Entry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Entries is an insertion-ordered label/value list. Setting an existing label
// replaces its value and keeps its original position (last write wins).
type Entries []Entry

// Set stores value under label, overwriting any earlier value for the same label
func (e *Entries) Set(label, value string) {
	for i := range *e {
		if (*e)[i].Label == label {
			(*e)[i].Value = value
			return
		}
	}
	*e = append(*e, Entry{Label: label, Value: value})
}

// Get returns the value stored under label
func (e Entries) Get(label string) (string, bool) {
	for _, entry := range e {
		if entry.Label == label {
			return entry.Value, true
		}
	}
	return "", false
}

// Has reports whether label is present
func (e Entries) Has(label string) bool {
	_, ok := e.Get(label)
	return ok
}

// Labels returns the labels in order
func (e Entries) Labels() []string {
	out := make([]string, len(e))
	for i, entry := range e {
		out[i] = entry.Label
	}
	return out
}

// Values returns the values in order
func (e Entries) Values() []string {
	out := make([]string, len(e))
	for i, entry := range e {
		out[i] = entry.Value
	}
	return out
}

// DrugClass is one normalized row group: a drug class (or mutation type for RT)
// with its mutations, drug susceptibilities and comment text.
type DrugClass struct {
	Gene      string  `json:"gene"`
	Name      string  `json:"name"`
	Mutations Entries `json:"mutations"`
	Drugs     Entries `json:"drugs"`
	Comments  string  `json:"comments"`
}

// ReportRow is a row group ready for rendering
type ReportRow struct {
	ClassLabel string  `json:"class_label"`
	Entries    Entries `json:"entries"`
}

// Report is the normalized result for one sequence
type Report struct {
	Header            string              `json:"header"`
	DatabaseVersion   string              `json:"database_version"`
	Subtype           string              `json:"subtype"`
	Validation        []ValidationMessage `json:"validation,omitempty"`
	ValidationSummary string              `json:"validation_summary"`
	Classes           []DrugClass         `json:"classes"`
	FirstColumn       [][]string          `json:"first_column"`
	SecondColumn      [][]string          `json:"second_column"`
}

// Rows zips the two columns into label/value row groups
func (r *Report) Rows() []ReportRow {
	rows := make([]ReportRow, 0, len(r.FirstColumn))
	for i := range r.FirstColumn {
		row := ReportRow{}
		if i < len(r.Classes) {
			row.ClassLabel = r.Classes[i].Name
		}
		for j, label := range r.FirstColumn[i] {
			value := ""
			if i < len(r.SecondColumn) && j < len(r.SecondColumn[i]) {
				value = r.SecondColumn[i][j]
			}
			row.Entries = append(row.Entries, Entry{Label: label, Value: value})
		}
		rows = append(rows, row)
	}
	return rows
}

// RunMetadata describes a report run for the header block of the output
type RunMetadata struct {
	RunID     string    `json:"run_id"`
	QueriedAt time.Time `json:"queried_at"`
	InputName string    `json:"input_name"`
}
