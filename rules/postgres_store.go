package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresRuleStore implements RuleStore backed by PostgreSQL
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// List returns all rules ordered by id
func (s *PostgresRuleStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, condition, action, created_at, updated_at
		FROM rules
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rulesList := make([]*Rule, 0)
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Condition, &r.Action,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Get retrieves a rule by id
func (s *PostgresRuleStore) Get(ctx context.Context, id int64) (*Rule, error) {
	var rule Rule
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, condition, action, created_at, updated_at
		FROM rules
		WHERE id = $1
	`, id).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Condition,
		&rule.Action,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return &rule, nil
}

// Create inserts a rule. An explicit id is kept and the serial sequence is
// advanced past it so later generated ids do not collide.
func (s *PostgresRuleStore) Create(ctx context.Context, rule *Rule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if rule.ID == 0 {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO rules (name, condition, action, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`, rule.Name, rule.Condition, rule.Action, rule.CreatedAt, rule.UpdatedAt).Scan(&rule.ID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO rules (id, name, condition, action, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rule.ID, rule.Name, rule.Condition, rule.Action, rule.CreatedAt, rule.UpdatedAt)
			if err == nil {
				err = advanceSequence(ctx, tx, "rules")
			}
		}
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("rule %d: %w", rule.ID, ErrConflict)
			}
			return fmt.Errorf("failed to insert rule: %w", err)
		}
		return nil
	})
}

// Update modifies an existing rule, leaving created_at untouched
func (s *PostgresRuleStore) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		UPDATE rules
		SET name = $1, condition = $2, action = $3, updated_at = $4
		WHERE id = $5
		RETURNING created_at
	`, rule.Name, rule.Condition, rule.Action, rule.UpdatedAt, rule.ID).Scan(&rule.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return notFound("rule", rule.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound("rule", id)
	}

	return nil
}

// PostgresVariableStore implements VariableStore backed by PostgreSQL
type PostgresVariableStore struct {
	db *sql.DB
}

// NewPostgresVariableStore creates a new PostgreSQL-backed VariableStore
func NewPostgresVariableStore(db *sql.DB) *PostgresVariableStore {
	return &PostgresVariableStore{db: db}
}

func (s *PostgresVariableStore) List(ctx context.Context) ([]*Variable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, created_at, updated_at
		FROM variables
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	vars := make([]*Variable, 0)
	for rows.Next() {
		var v Variable
		if err := rows.Scan(&v.ID, &v.Name, &v.Type, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}
		vars = append(vars, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variables: %w", err)
	}

	return vars, nil
}

func (s *PostgresVariableStore) Get(ctx context.Context, id int64) (*Variable, error) {
	v, err := s.scanOne(ctx, `
		SELECT id, name, type, created_at, updated_at
		FROM variables
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("variable", id)
	}
	return v, err
}

func (s *PostgresVariableStore) GetByName(ctx context.Context, name string) (*Variable, error) {
	v, err := s.scanOne(ctx, `
		SELECT id, name, type, created_at, updated_at
		FROM variables
		WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variable %q: %w", name, ErrNotFound)
	}
	return v, err
}

func (s *PostgresVariableStore) scanOne(ctx context.Context, query string, arg any) (*Variable, error) {
	var v Variable
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&v.ID, &v.Name, &v.Type, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	return &v, nil
}

func (s *PostgresVariableStore) Create(ctx context.Context, variable *Variable) error {
	now := time.Now().UTC()
	variable.CreatedAt = now
	variable.UpdatedAt = now

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if variable.ID == 0 {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO variables (name, type, created_at, updated_at)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, variable.Name, variable.Type, variable.CreatedAt, variable.UpdatedAt).Scan(&variable.ID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO variables (id, name, type, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5)
			`, variable.ID, variable.Name, variable.Type, variable.CreatedAt, variable.UpdatedAt)
			if err == nil {
				err = advanceSequence(ctx, tx, "variables")
			}
		}
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("variable %q: %w", variable.Name, ErrConflict)
			}
			return fmt.Errorf("failed to insert variable: %w", err)
		}
		return nil
	})
}

func (s *PostgresVariableStore) Update(ctx context.Context, variable *Variable) error {
	variable.UpdatedAt = time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		UPDATE variables
		SET name = $1, type = $2, updated_at = $3
		WHERE id = $4
		RETURNING created_at
	`, variable.Name, variable.Type, variable.UpdatedAt, variable.ID).Scan(&variable.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return notFound("variable", variable.ID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("variable name %q: %w", variable.Name, ErrConflict)
		}
		return fmt.Errorf("failed to update variable: %w", err)
	}

	return nil
}

func (s *PostgresVariableStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound("variable", id)
	}

	return nil
}

// withTx runs fn in a transaction, rolling back on any error
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// advanceSequence moves a table's id sequence to at least its current max id
func advanceSequence(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))`,
		table, table))
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
