package migrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eleven-am/pantry/internal/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const DefaultHistoryTable = "schema_history"

// Engine applies declared changes to a database, in order and at most once
type Engine struct {
	db        *sqlx.DB
	dialect   Dialect
	changes   []Change
	models    []*Schema // models[v] is the schema after version v
	table     string
	lockTable string
	inspect   Inspector
	log       *logger.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

func WithHistoryTable(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.table = name
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l.Migration()
		}
	}
}

func WithInspector(fn Inspector) Option {
	return func(e *Engine) { e.inspect = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Result summarizes an Apply run
type Result struct {
	From    int
	To      int
	Applied []int
}

// Status is a snapshot of the migration state
type Status struct {
	Current int
	Latest  int
	Pending int
	Holder  string
}

// NewEngine validates the declared changes and folds them into schema models
func NewEngine(db *sqlx.DB, d Dialect, changes []Change, opts ...Option) (*Engine, error) {
	e := &Engine{
		db:      db,
		dialect: d,
		changes: changes,
		table:   DefaultHistoryTable,
		inspect: AtlasInspector,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lockTable = e.table + "_lock"

	models, err := Fold(changes)
	if err != nil {
		return nil, err
	}
	e.models = models

	return e, nil
}

// Fold validates the declared changes and returns the schema model at every
// version, starting from the empty schema at version 0
func Fold(changes []Change) ([]*Schema, error) {
	model := NewSchema()
	models := []*Schema{model}
	for i, ch := range changes {
		if ch.Version != i+1 {
			return nil, invalidf("change %q has version %d, expected %d", ch.Description, ch.Version, i+1)
		}
		if ch.Description == "" || ch.Operation == nil {
			return nil, invalidf("change %d needs a description and an operation", ch.Version)
		}
		next := model.Clone()
		if err := ch.Operation.Mutate(next); err != nil {
			return nil, &ChangeError{Version: ch.Version, Description: ch.Description, Err: err}
		}
		models = append(models, next)
		model = next
	}
	return models, nil
}

// Schema returns the model after every declared change
func (e *Engine) Schema() *Schema {
	return e.models[len(e.models)-1].Clone()
}

// SchemaAt returns the model at the given version
func (e *Engine) SchemaAt(version int) (*Schema, error) {
	if version < 0 || version >= len(e.models) {
		return nil, fmt.Errorf("version %d out of range 0..%d", version, len(e.models)-1)
	}
	return e.models[version].Clone(), nil
}

func (e *Engine) Changes() []Change {
	return append([]Change(nil), e.changes...)
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// CurrentVersion returns the last committed version
func (e *Engine) CurrentVersion(ctx context.Context) (int, error) {
	if err := e.ensureTables(ctx); err != nil {
		return 0, err
	}
	return e.currentVersion(ctx, e.db)
}

// History returns the applied changes in version order
func (e *Engine) History(ctx context.Context) ([]Record, error) {
	if err := e.ensureTables(ctx); err != nil {
		return nil, err
	}
	return e.loadHistory(ctx)
}

// PendingChanges returns the declared changes not yet applied, in order
func (e *Engine) PendingChanges(ctx context.Context) ([]Change, error) {
	records, err := e.History(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.verifyHistory(records); err != nil {
		return nil, err
	}
	return append([]Change(nil), e.changes[len(records):]...), nil
}

func (e *Engine) Status(ctx context.Context) (*Status, error) {
	pending, err := e.PendingChanges(ctx)
	if err != nil {
		return nil, err
	}
	holder, _, err := e.LockHolder(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Current: len(e.changes) - len(pending),
		Latest:  len(e.changes),
		Pending: len(pending),
		Holder:  holder,
	}, nil
}

// Apply runs every pending change. It stops at the first failure, leaving the
// schema at the last committed version.
func (e *Engine) Apply(ctx context.Context) (*Result, error) {
	if err := e.ensureTables(ctx); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	if err := e.acquireLock(ctx, holder); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.releaseLock(context.WithoutCancel(ctx), holder); err != nil {
			e.log.Error("Failed to release schema lock", "holder", holder, "error", err)
		}
	}()

	pending, err := e.PendingChanges(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{From: len(e.changes) - len(pending)}
	result.To = result.From
	if len(pending) == 0 {
		e.log.Info("Schema is up to date", "version", result.From)
		return result, nil
	}

	for _, ch := range pending {
		if err := e.apply(ctx, ch); err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, ch.Version)
		result.To = ch.Version
	}

	e.log.Info("Schema migrated", "from", result.From, "to", result.To)
	return result, nil
}

// ApplyChange applies a single declared change. Re-applying a change that is
// already recorded returns ErrAlreadyApplied.
func (e *Engine) ApplyChange(ctx context.Context, ch Change) error {
	if ch.Version < 1 || ch.Version > len(e.changes) || e.changes[ch.Version-1].Checksum() != ch.Checksum() {
		return &ChangeError{Version: ch.Version, Description: ch.Description, Err: invalidf("change is not declared")}
	}

	if err := e.ensureTables(ctx); err != nil {
		return err
	}

	holder := uuid.NewString()
	if err := e.acquireLock(ctx, holder); err != nil {
		return err
	}
	defer func() {
		if err := e.releaseLock(context.WithoutCancel(ctx), holder); err != nil {
			e.log.Error("Failed to release schema lock", "holder", holder, "error", err)
		}
	}()

	records, err := e.loadHistory(ctx)
	if err != nil {
		return err
	}
	if err := e.verifyHistory(records); err != nil {
		return err
	}

	current := len(records)
	if ch.Version <= current {
		e.log.Info("Change already applied", "version", ch.Version)
		return &ChangeError{Version: ch.Version, Description: ch.Description, Err: ErrAlreadyApplied}
	}
	if ch.Version != current+1 {
		return &ChangeError{Version: ch.Version, Description: ch.Description,
			Err: conflictf("schema is at version %d, change needs %d first", current, ch.Version-1)}
	}

	return e.apply(ctx, ch)
}

func (e *Engine) apply(ctx context.Context, ch Change) error {
	wrap := func(err error) error {
		return &ChangeError{Version: ch.Version, Description: ch.Description, Err: err}
	}

	before := e.models[ch.Version-1]
	after := e.models[ch.Version]
	op := ch.Operation

	statements, err := op.Statements(e.dialect, before, after)
	if err != nil {
		return wrap(err)
	}

	e.log.Info("Applying change...", "version", ch.Version, "description", ch.Description)

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	locked := []string{e.table}
	for _, name := range op.Tables() {
		if _, ok := before.Table(name); ok {
			locked = append(locked, name)
		}
	}
	for _, stmt := range e.dialect.LockTables(locked) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrap(fmt.Errorf("failed to lock tables: %w", err))
		}
	}

	current, err := e.currentVersion(ctx, tx)
	if err != nil {
		return wrap(err)
	}
	if current != ch.Version-1 {
		return wrap(conflictf("schema is at version %d, expected %d", current, ch.Version-1))
	}

	live, err := e.inspect(ctx, e.dialect, tx)
	if err != nil {
		return wrap(err)
	}
	if err := op.CheckLive(live, before); err != nil {
		return wrap(err)
	}
	if err := op.CheckData(ctx, tx, before); err != nil {
		return wrap(err)
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrap(fmt.Errorf("failed to execute statement: %s: %w", stmt, err))
		}
	}

	forward := strings.Join(statements, ";\n")
	preconditions := strings.Join(op.Preconditions(), "; ")
	if err := e.recordChange(ctx, tx, ch, forward, preconditions); err != nil {
		return wrap(fmt.Errorf("failed to record change: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return wrap(fmt.Errorf("failed to commit change: %w", err))
	}

	e.log.Info("Change applied", "version", ch.Version, "statements", len(statements))
	return nil
}
