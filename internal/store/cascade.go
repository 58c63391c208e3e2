package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
)

// dependents counts the rows in other tables that reference the given row
func (s *Store) dependents(ctx context.Context, op, table string, id int64) (map[string]int, error) {
	counts := make(map[string]int)
	for _, ref := range s.schema.ReferencesTo(table) {
		n, err := s.count(ctx, s.sb.Select("COUNT(*)").From(ref.Table).Where(squirrel.Eq{ref.Column: id}))
		if err != nil {
			return nil, parseError(err, op, ref.Table)
		}
		if n > 0 {
			counts[ref.Table] += n
		}
	}
	return counts, nil
}

func describeDependents(counts map[string]int) string {
	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = fmt.Sprintf("%d %s", counts[t], t)
	}
	return "referenced by " + strings.Join(parts, ", ")
}

// deleteCascade deletes rows by id after deleting, depth first, every row that
// references them. It must run inside a transaction.
func (s *Store) deleteCascade(ctx context.Context, op, table string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64
	for _, ref := range s.schema.ReferencesTo(table) {
		var children []int64
		q := s.sb.Select("id").From(ref.Table).Where(squirrel.Eq{ref.Column: ids})
		if err := s.query(ctx, &children, q); err != nil {
			return removed, parseError(err, op, ref.Table)
		}

		n, err := s.deleteCascade(ctx, op, ref.Table, children)
		if err != nil {
			return removed, err
		}
		if n > 0 {
			s.log.Store().Debug("Cascaded delete", "table", ref.Table, "parent", table, "rows", n)
		}
		removed += n
	}

	n, err := s.execute(ctx, s.sb.Delete(table).Where(squirrel.Eq{"id": ids}))
	if err != nil {
		return removed, parseError(err, op, table)
	}
	return removed + n, nil
}

// deleteOwned removes a single row together with everything it owns
func (s *Store) deleteOwned(ctx context.Context, op, table string, id int64) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, table, id); err != nil {
			return err
		}
		n, err := tx.deleteCascade(ctx, op, table, []int64{id})
		if err != nil {
			return err
		}
		tx.log.Info("Deleted", "table", table, "id", id, "rows", n)
		return nil
	})
}
