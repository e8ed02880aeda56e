package tracker

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

// Column names recognized by the importer. Other columns are kept in the
// row data but ignored.
const (
	ColTitle       = "title"
	ColDescription = "description"
	ColPriority    = "priority"
	ColStatus      = "status"
	ColAuthorID    = "authorId"
	ColAssigneeID  = "assigneeId"
)

// ImportColumns lists the recognized columns in template order.
var ImportColumns = []string{ColTitle, ColDescription, ColPriority, ColStatus, ColAuthorID, ColAssigneeID}

// TableError reports delimited text that could not be parsed. No row is
// processed when it is returned.
type TableError struct {
	Line int
	Err  error
}

func (e *TableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse table: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse table: %v", e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// Row maps header names to cell values for one data row.
type Row map[string]string

// Table is a parsed header plus data rows.
type Table struct {
	Header []string
	Rows   []Row
}

// ParseTable reads comma-separated text whose first record is the header.
// Blank lines are skipped. Quoting follows RFC 4180.
func ParseTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &TableError{Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, tableError(err)
	}

	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, &TableError{Line: 1, Err: fmt.Errorf("column %d has an empty name", i+1)}
		}
		if seen[h] {
			return nil, &TableError{Line: 1, Err: fmt.Errorf("duplicate column %q", h)}
		}
		seen[h] = true
		header[i] = h
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, tableError(err)
		}
		row := make(Row, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func tableError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &TableError{Line: pe.Line, Err: pe.Err}
	}
	return &TableError{Err: err}
}

// FailureKind distinguishes rows rejected by validation from rows the
// store refused.
type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureStorage    FailureKind = "storage"
)

// ImportFailure describes one row that was not imported. Row is 1-based
// over data rows.
type ImportFailure struct {
	Row    int          `json:"row"`
	Kind   FailureKind  `json:"kind"`
	Errors []FieldError `json:"errors,omitempty"`
	Error  string       `json:"error,omitempty"`
	Data   Row          `json:"data"`
}

// ImportReport summarizes an import. Success + len(Failures) == Total.
type ImportReport struct {
	Total    int             `json:"total"`
	Success  int             `json:"success"`
	Failures []ImportFailure `json:"failures"`
	DryRun   bool            `json:"dryRun,omitempty"`
}

// ImportOptions controls an import.
type ImportOptions struct {
	// DryRun validates every row without writing anything.
	DryRun bool
}

// ImportIssues parses r and imports each row independently. Structural
// problems in r fail the whole call with a *TableError; problems with
// individual rows are collected in the report.
func (s *Service) ImportIssues(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	t, err := ParseTable(r)
	if err != nil {
		return nil, err
	}
	return s.ImportTable(ctx, t, opts)
}

// ImportTable imports the rows of t in order. Each row succeeds or fails on
// its own; there is no enclosing transaction.
func (s *Service) ImportTable(ctx context.Context, t *Table, opts ImportOptions) (*ImportReport, error) {
	report := &ImportReport{
		Total:    len(t.Rows),
		Failures: []ImportFailure{},
		DryRun:   opts.DryRun,
	}

	for i, row := range t.Rows {
		rowNum := i + 1

		if err := ctx.Err(); err != nil {
			for j := i; j < len(t.Rows); j++ {
				report.Failures = append(report.Failures, ImportFailure{
					Row: j + 1, Kind: FailureStorage, Error: err.Error(), Data: t.Rows[j],
				})
			}
			s.log.WarnContext(ctx, "import interrupted", "row", rowNum, "err", err)
			break
		}

		in, err := rowInput(row)
		if err != nil {
			var ve *ValidationError
			errors.As(err, &ve)
			report.Failures = append(report.Failures, ImportFailure{
				Row: rowNum, Kind: FailureValidation, Errors: ve.Fields, Data: row,
			})
			continue
		}

		if opts.DryRun {
			report.Success++
			continue
		}

		issue := in.issue()
		author := models.SyntheticUser(in.AuthorID, models.ImportedUserDomain)
		if err := s.store.CreateIssue(ctx, issue, author); err != nil {
			s.log.DebugContext(ctx, "import row failed", "row", rowNum, "err", err)
			report.Failures = append(report.Failures, ImportFailure{
				Row: rowNum, Kind: FailureStorage, Error: err.Error(), Data: row,
			})
			continue
		}
		report.Success++
	}

	s.log.InfoContext(ctx, "import finished",
		"total", report.Total, "success", report.Success, "failed", len(report.Failures), "dry_run", opts.DryRun)
	return report, nil
}

// rowInput converts a row into a validated CreateIssueInput. Empty optional
// cells count as absent and enum cells are matched case-insensitively.
func rowInput(row Row) (CreateIssueInput, error) {
	in := CreateIssueInput{
		Title:       row[ColTitle],
		Description: row[ColDescription],
		Status:      models.IssueStatus(strings.ToUpper(strings.TrimSpace(row[ColStatus]))),
		Priority:    models.IssuePriority(strings.ToUpper(strings.TrimSpace(row[ColPriority]))),
		AuthorID:    row[ColAuthorID],
	}
	if a := strings.TrimSpace(row[ColAssigneeID]); a != "" {
		in.AssigneeID = &a
	}
	in.normalize()
	return in, in.validate()
}
