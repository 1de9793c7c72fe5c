package roleset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"alkemio.org/authz/internal/authorization"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrUndefinedTable  = "42P01"
)

// Postgres reads definitions from the role_definitions table:
//
//	scope text, role_name text, privileges jsonb, position int
type Postgres struct {
	db *sql.DB
}

var _ Source = (*Postgres)(nil)

// OpenPostgres opens a pgx backed pool for dsn.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Definitions(ctx context.Context, scope string) ([]authorization.RoleAccessDefinition, error) {
	if p.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	scope = NormalizeScope(scope)
	rows, err := p.db.QueryContext(ctx, `
		select role_name, privileges
		from role_definitions
		where scope = $1
		order by position, role_name
	`, scope)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUndefinedTable {
			return nil, fmt.Errorf("%w: %s (role_definitions table missing)", ErrScopeNotFound, scope)
		}
		return nil, err
	}
	defer rows.Close()

	var defs []authorization.RoleAccessDefinition
	for rows.Next() {
		var (
			roleName string
			rawPriv  []byte
		)
		if err := rows.Scan(&roleName, &rawPriv); err != nil {
			return nil, err
		}
		var keys []string
		if len(rawPriv) > 0 {
			if err := json.Unmarshal(rawPriv, &keys); err != nil {
				return nil, fmt.Errorf("decode privileges for %s: %w", roleName, err)
			}
		}
		role, err := authorization.ParseRoleName(roleName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinitions, err)
		}
		privs, err := authorization.ParsePrivileges(keys)
		if err != nil {
			return nil, fmt.Errorf("%w: role %s: %v", ErrInvalidDefinitions, role, err)
		}
		defs = append(defs, authorization.RoleAccessDefinition{RoleName: role, GrantedPrivileges: privs})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Replace swaps every definition of scope for defs in one transaction.
func (p *Postgres) Replace(ctx context.Context, scope string, defs []authorization.RoleAccessDefinition) error {
	if p.db == nil {
		return errors.New("database connection unavailable")
	}
	scope = NormalizeScope(scope)
	if scope == "" {
		return fmt.Errorf("%w: empty scope name", ErrInvalidDefinitions)
	}
	if err := Validate(defs); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_definitions where scope = $1`, scope); err != nil {
		return err
	}
	for i, def := range defs {
		privs := def.GrantedPrivileges
		if privs == nil {
			privs = []authorization.Privilege{}
		}
		raw, err := json.Marshal(privs)
		if err != nil {
			return fmt.Errorf("marshal privileges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_definitions (scope, role_name, privileges, position)
			values ($1, $2, $3, $4)
		`, scope, string(def.RoleName), raw, i); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: duplicate role %s", ErrInvalidDefinitions, def.RoleName)
			}
			return err
		}
	}
	return tx.Commit()
}

// Ping reports whether the database answers.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.db == nil {
		return errors.New("database connection unavailable")
	}
	return p.db.PingContext(ctx)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
