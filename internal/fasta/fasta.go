// Package fasta loads the query sequences from FASTA formatted input.
package fasta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/hivdr-report/internal/domain"
)

const maxLineSize = 10 * 1024 * 1024

// Load reads FASTA records from r. Lines beginning with '>' start a record,
// lines beginning with '#' are ignored and all other lines are trimmed and
// concatenated into the current record's sequence. Records without a header or
// without residues are dropped.
func Load(r io.Reader) ([]domain.Sequence, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []domain.Sequence
	var header string
	var residues strings.Builder

	emit := func() {
		if header != "" && residues.Len() > 0 {
			records = append(records, domain.Sequence{Header: header, Residues: residues.String()})
		}
		residues.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ">"):
			emit()
			header = strings.TrimSpace(line[1:])
		case strings.HasPrefix(line, "#"):
			continue
		default:
			residues.WriteString(strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FASTA input: %w", err)
	}
	emit()

	return records, nil
}

// LoadFile loads the FASTA records of the file at path
func LoadFile(path string) ([]domain.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("input file %s does not exist: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}
	defer f.Close()

	records, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
