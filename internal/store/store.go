package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/eleven-am/pantry/internal/logger"
	"github.com/eleven-am/pantry/internal/migrator"
)

// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx, so every query can
// run either on the pool or inside a transaction.
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
	DriverName() string
}

var (
	_ DBExecutor = (*sqlx.DB)(nil)
	_ DBExecutor = (*sqlx.Tx)(nil)
)

// Store is the data-access layer for the pantry
type Store struct {
	db       *sqlx.DB
	executor DBExecutor // current executor (DB or TX)
	dialect  migrator.Dialect
	sb       squirrel.StatementBuilderType
	schema   *migrator.Schema
	validate *validator.Validate
	log      *logger.Logger
}

// Option configures a Store
type Option func(*Store)

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New wraps an open database. The dialect follows the driver name.
func New(db *sqlx.DB, opts ...Option) (*Store, error) {
	d, err := migrator.DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}

	models, err := migrator.Fold(Changelog())
	if err != nil {
		return nil, fmt.Errorf("invalid changelog: %w", err)
	}

	s := &Store{
		db:       db,
		executor: db,
		dialect:  d,
		sb:       squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder()),
		schema:   models[len(models)-1],
		validate: newValidator(),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Connect opens a database for the given driver. SQLite is limited to one
// connection, which makes it a single writer.
func Connect(ctx context.Context, driver, url string, maxConns int) (*sqlx.DB, error) {
	d, err := migrator.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.DriverName(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch d.(type) {
	case migrator.SQLite:
		db.SetMaxOpenConns(1)
	default:
		if maxConns > 0 {
			db.SetMaxOpenConns(maxConns)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, ok := d.(migrator.SQLite); ok {
		// integrity is enforced by the store; the rebuilds done by schema
		// changes need the pragma off
		for _, pragma := range []string{"PRAGMA foreign_keys = OFF", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to configure sqlite: %w", err)
			}
		}
	}

	return db, nil
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Dialect() migrator.Dialect {
	return s.dialect
}

// Schema returns the current model of the store's tables
func (s *Store) Schema() *migrator.Schema {
	return s.schema.Clone()
}

// Engine returns a schema evolution engine for the store's changelog
func (s *Store) Engine(opts ...migrator.Option) (*migrator.Engine, error) {
	opts = append([]migrator.Option{migrator.WithLogger(s.log)}, opts...)
	return migrator.NewEngine(s.db, s.dialect, Changelog(), opts...)
}

// Migrate brings the database up to the latest changelog version
func (s *Store) Migrate(ctx context.Context, opts ...migrator.Option) (*migrator.Result, error) {
	engine, err := s.Engine(opts...)
	if err != nil {
		return nil, err
	}
	return engine.Apply(ctx)
}

func (s *Store) withExecutor(executor DBExecutor) *Store {
	clone := *s
	clone.executor = executor
	return &clone
}

// WithTransaction runs fn inside a transaction. Nested calls join the
// enclosing transaction. The transaction is rolled back when fn returns an
// error or panics.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	if _, isTransaction := s.executor.(*sqlx.Tx); isTransaction {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(s.withExecutor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) get(ctx context.Context, dest interface{}, q squirrel.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return s.executor.GetContext(ctx, dest, query, args...)
}

func (s *Store) query(ctx context.Context, dest interface{}, q squirrel.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return s.executor.SelectContext(ctx, dest, query, args...)
}

// execute runs a statement and returns the number of affected rows
func (s *Store) execute(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	res, err := s.executor.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insert runs an insert and returns the generated id
func (s *Store) insert(ctx context.Context, q squirrel.InsertBuilder) (int64, error) {
	var id int64
	if err := s.get(ctx, &id, q.Suffix("RETURNING id")); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) count(ctx context.Context, q squirrel.SelectBuilder) (int, error) {
	var n int
	if err := s.get(ctx, &n, q); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, table string, id int64) (bool, error) {
	n, err := s.count(ctx, s.sb.Select("COUNT(*)").From(table).Where(squirrel.Eq{"id": id}))
	return n > 0, err
}

// requireRow returns a not-found error when the row is absent
func (s *Store) requireRow(ctx context.Context, op, table string, id int64) error {
	ok, err := s.exists(ctx, table, id)
	if err != nil {
		return parseError(err, op, table)
	}
	if !ok {
		return notFound(op, table, id)
	}
	return nil
}

// requireRef returns a foreign key error when table.column would point at a
// missing refTable row
func (s *Store) requireRef(ctx context.Context, op, table, column, refTable string, id int64) error {
	ok, err := s.exists(ctx, refTable, id)
	if err != nil {
		return parseError(err, op, refTable)
	}
	if !ok {
		return missingReference(op, table, column, refTable, id)
	}
	return nil
}
