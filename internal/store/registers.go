package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/eleven-am/pantry/internal/model"
)

// Kind names a reference register
type Kind string

const (
	Units       Kind = "units"
	Stores      Kind = "stores"
	Categories  Kind = "categories"
	Departments Kind = "departments"
	Locations   Kind = "locations"
	Frequencies Kind = "frequencies"
)

// registers maps each kind to its table's label column
var registers = map[Kind]string{
	Units:       "name",
	Stores:      "store_name",
	Categories:  "category",
	Departments: "department",
	Locations:   "location",
	Frequencies: "frequency",
}

func Kinds() []Kind {
	return []Kind{Units, Stores, Categories, Departments, Locations, Frequencies}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registers[k]; !ok {
		return "", fmt.Errorf("unknown register %q", s)
	}
	return k, nil
}

func (k Kind) table() string { return string(k) }

func (k Kind) label(op string) (string, error) {
	label, ok := registers[k]
	if !ok {
		return "", invalid(op, "kind", fmt.Sprintf("unknown register %q", string(k)))
	}
	return label, nil
}

func normalizeLabel(op, field, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", invalid(op, field, "is required")
	}
	return label, nil
}

// ensureLabelFree fails with a duplicate error when another row already uses
// the label. The unique index remains the final arbiter.
func (s *Store) ensureLabelFree(ctx context.Context, op string, k Kind, column, label string, exceptID int64) error {
	q := s.sb.Select("COUNT(*)").From(k.table()).Where(squirrel.Eq{column: label})
	if exceptID != 0 {
		q = q.Where(squirrel.NotEq{"id": exceptID})
	}
	n, err := s.count(ctx, q)
	if err != nil {
		return parseError(err, op, k.table())
	}
	if n > 0 {
		return duplicate(op, k.table(), column, label)
	}
	return nil
}

func (s *Store) createLabeled(ctx context.Context, op string, k Kind, label string, extra map[string]interface{}) (int64, error) {
	column, err := k.label(op)
	if err != nil {
		return 0, err
	}
	label, err = normalizeLabel(op, column, label)
	if err != nil {
		return 0, err
	}

	values := map[string]interface{}{column: label}
	for c, v := range extra {
		values[c] = v
	}

	var id int64
	err = s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.ensureLabelFree(ctx, op, k, column, label, 0); err != nil {
			return err
		}
		newID, err := tx.insert(ctx, tx.sb.Insert(k.table()).SetMap(values))
		if err != nil {
			return parseError(err, op, k.table())
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Store().Debug("Register entry created", "register", string(k), "id", id, "label", label)
	return id, nil
}

// CreateEntry adds a label to a register
func (s *Store) CreateEntry(ctx context.Context, k Kind, label string) (int64, error) {
	return s.createLabeled(ctx, "CreateEntry", k, label, nil)
}

// RenameEntry changes the label of an existing entry. References follow by id.
func (s *Store) RenameEntry(ctx context.Context, k Kind, id int64, label string) error {
	const op = "RenameEntry"
	column, err := k.label(op)
	if err != nil {
		return err
	}
	label, err = normalizeLabel(op, column, label)
	if err != nil {
		return err
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, k.table(), id); err != nil {
			return err
		}
		if err := tx.ensureLabelFree(ctx, op, k, column, label, id); err != nil {
			return err
		}
		_, err := tx.execute(ctx, tx.sb.Update(k.table()).Set(column, label).Where(squirrel.Eq{"id": id}))
		return parseError(err, op, k.table())
	})
}

// GetEntry returns a single register entry
func (s *Store) GetEntry(ctx context.Context, k Kind, id int64) (*model.Entry, error) {
	const op = "GetEntry"
	column, err := k.label(op)
	if err != nil {
		return nil, err
	}

	var e model.Entry
	q := s.sb.Select("id", column+" AS label").From(k.table()).Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &e, q); err != nil {
		return nil, parseError(err, op, k.table())
	}
	return &e, nil
}

// ListEntries returns the entries of a register ordered by label
func (s *Store) ListEntries(ctx context.Context, k Kind) ([]model.Entry, error) {
	const op = "ListEntries"
	column, err := k.label(op)
	if err != nil {
		return nil, err
	}

	entries := []model.Entry{}
	q := s.sb.Select("id", column+" AS label").From(k.table()).OrderBy(column, "id")
	if err := s.query(ctx, &entries, q); err != nil {
		return nil, parseError(err, op, k.table())
	}
	return entries, nil
}

// DeleteEntry removes a register entry. While rows still reference it the
// delete fails with ErrConflict, unless cascade is set, in which case every
// dependent row is removed first in the same transaction.
func (s *Store) DeleteEntry(ctx context.Context, k Kind, id int64, cascade bool) error {
	const op = "DeleteEntry"
	if _, err := k.label(op); err != nil {
		return err
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, k.table(), id); err != nil {
			return err
		}

		deps, err := tx.dependents(ctx, op, k.table(), id)
		if err != nil {
			return err
		}
		if len(deps) > 0 && !cascade {
			return &Error{Op: op, Table: k.table(), Err: ErrConflict, Detail: describeDependents(deps)}
		}

		n, err := tx.deleteCascade(ctx, op, k.table(), []int64{id})
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			tx.log.Warn("Register entry deleted with dependents", "register", string(k), "id", id, "rows", n)
		}
		return nil
	})
}

// CreateStore adds a store with its address
func (s *Store) CreateStore(ctx context.Context, name, address string) (int64, error) {
	return s.createLabeled(ctx, "CreateStore", Stores, name, map[string]interface{}{
		"address": strings.TrimSpace(address),
	})
}

func (s *Store) UpdateStoreAddress(ctx context.Context, id int64, address string) error {
	const op = "UpdateStoreAddress"
	n, err := s.execute(ctx, s.sb.Update("stores").Set("address", strings.TrimSpace(address)).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return parseError(err, op, "stores")
	}
	if n == 0 {
		return notFound(op, "stores", id)
	}
	return nil
}

func (s *Store) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	var st model.Store
	q := s.sb.Select("id", "store_name", "address").From("stores").Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &st, q); err != nil {
		return nil, parseError(err, "GetStore", "stores")
	}
	return &st, nil
}

// CreateFrequency adds a frequency. A missing duration leaves the interval
// unscheduled.
func (s *Store) CreateFrequency(ctx context.Context, label string, duration sql.Null[int64]) (int64, error) {
	const op = "CreateFrequency"
	if err := checkDuration(op, duration); err != nil {
		return 0, err
	}
	return s.createLabeled(ctx, op, Frequencies, label, map[string]interface{}{"duration": duration})
}

func (s *Store) SetFrequencyDuration(ctx context.Context, id int64, duration sql.Null[int64]) error {
	const op = "SetFrequencyDuration"
	if err := checkDuration(op, duration); err != nil {
		return err
	}
	n, err := s.execute(ctx, s.sb.Update("frequencies").Set("duration", duration).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return parseError(err, op, "frequencies")
	}
	if n == 0 {
		return notFound(op, "frequencies", id)
	}
	return nil
}

func (s *Store) GetFrequency(ctx context.Context, id int64) (*model.Frequency, error) {
	var f model.Frequency
	q := s.sb.Select("id", "frequency", "duration").From("frequencies").Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &f, q); err != nil {
		return nil, parseError(err, "GetFrequency", "frequencies")
	}
	return &f, nil
}

func checkDuration(op string, duration sql.Null[int64]) error {
	if duration.Valid && duration.V <= 0 {
		return invalid(op, "duration", "must be greater than 0")
	}
	return nil
}
