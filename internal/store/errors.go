package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrNotFound    = errors.New("record not found")
	ErrValidation  = errors.New("validation failed")
	ErrDuplicate   = errors.New("duplicate key violation")
	ErrForeignKey  = errors.New("foreign key violation")
	ErrConflict    = errors.New("dependent rows exist")
	ErrPartialData = errors.New("partial data")
)

// Error provides detailed error information
type Error struct {
	Op         string // Operation that failed
	Table      string // Table involved
	Column     string // Column name (if applicable)
	Constraint string // Constraint name (if applicable)
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("store: %s", e.Op))

	if e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s", e.Table))
	}

	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column=%s", e.Column))
	}

	if e.Constraint != "" {
		parts = append(parts, fmt.Sprintf("constraint=%s", e.Constraint))
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for Error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return errors.Is(e.Err, target)
	}

	if t.Op != "" && e.Op == t.Op {
		return true
	}

	return errors.Is(e.Err, t.Err)
}

func notFound(op, table string, id int64) error {
	return &Error{Op: op, Table: table, Err: ErrNotFound, Detail: fmt.Sprintf("id %d", id)}
}

func duplicate(op, table, column, value string) error {
	return &Error{Op: op, Table: table, Column: column, Err: ErrDuplicate, Detail: fmt.Sprintf("%q already exists", value)}
}

func missingReference(op, table, column, refTable string, id int64) error {
	return &Error{Op: op, Table: table, Column: column, Err: ErrForeignKey, Detail: fmt.Sprintf("%s %d does not exist", refTable, id)}
}

// parseError translates driver errors into store errors
func parseError(err error, op, table string) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	var validationErr *ValidationError
	if errors.As(err, &storeErr) || errors.As(err, &validationErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Op: op, Table: table, Err: ErrNotFound}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Table: table, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return parsePostgresError(pqErr, op, table)
	}

	return parseSQLiteError(err, op, table)
}

func parsePostgresError(pqErr *pq.Error, op, table string) error {
	e := &Error{
		Op:         op,
		Table:      table,
		Column:     pqErr.Column,
		Constraint: pqErr.Constraint,
		Detail:     pqErr.Detail,
	}

	switch pqErr.Code {
	case "23505":
		e.Err = ErrDuplicate
	case "23503":
		e.Err = ErrForeignKey
	case "23502", "23514", "22003":
		e.Err = ErrValidation
	default:
		e.Err = pqErr
	}
	return e
}

// parseSQLiteError matches the messages sqlite reports for constraint failures,
// e.g. "UNIQUE constraint failed: units.name"
func parseSQLiteError(err error, op, table string) error {
	msg := err.Error()

	kinds := []struct {
		marker string
		err    error
	}{
		{"UNIQUE constraint failed", ErrDuplicate},
		{"FOREIGN KEY constraint failed", ErrForeignKey},
		{"NOT NULL constraint failed", ErrValidation},
		{"CHECK constraint failed", ErrValidation},
	}

	for _, k := range kinds {
		idx := strings.Index(msg, k.marker)
		if idx == -1 {
			continue
		}
		return &Error{
			Op:     op,
			Table:  table,
			Column: extractSQLiteColumn(msg[idx+len(k.marker):]),
			Err:    k.err,
		}
	}

	return &Error{Op: op, Table: table, Err: err}
}

func extractSQLiteColumn(rest string) string {
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSpace(rest)
	if end := strings.IndexAny(rest, " ,("); end != -1 {
		rest = rest[:end]
	}
	if dot := strings.LastIndex(rest, "."); dot != -1 {
		rest = rest[dot+1:]
	}
	return rest
}

// FieldError is a single invalid input field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError represents rejected input
type ValidationError struct {
	Op     string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var messages []string
	for _, f := range e.Fields {
		messages = append(messages, fmt.Sprintf("%s %s", f.Field, f.Message))
	}
	return fmt.Sprintf("store: %s: validation failed: %s", e.Op, strings.Join(messages, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(op, field, message string) error {
	return &ValidationError{Op: op, Fields: []FieldError{{Field: field, Message: message}}}
}

// PartialDataWarning reports ingredients that could not be priced. The rollup
// it accompanies is still usable.
type PartialDataWarning struct {
	RecipeID int64
	Missing  []string
}

func (w *PartialDataWarning) Error() string {
	return fmt.Sprintf("store: recipe %d cost is partial: no price for %s", w.RecipeID, strings.Join(w.Missing, ", "))
}

func (w *PartialDataWarning) Is(target error) bool {
	return target == ErrPartialData
}

// IsConstraintError checks if an error is a constraint violation
func IsConstraintError(err error) bool {
	return errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrForeignKey) ||
		errors.Is(err, ErrConflict)
}
