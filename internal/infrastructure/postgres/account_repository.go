package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/internal/domain/repository"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id::text, username, password_hash, email, display_name, phone, avatar_url, created_at, updated_at`

type AccountRepository struct {
	db DB
}

func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(username) = LOWER($1)
	`, entity.NormalizeUsername(username))
	return scanAccount(row)
}

// Insert relies on the unique index over LOWER(username) to arbitrate
// concurrent registrations.
func (r *AccountRepository) Insert(ctx context.Context, a *entity.Account) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash, email, display_name, phone, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, a.Username, a.PasswordHash, a.Email, a.DisplayName, a.Phone, a.AvatarURL, a.CreatedAt, a.UpdatedAt).Scan(&id)
	if err != nil {
		return "", mapError(err)
	}
	return id, nil
}

// Update writes every mutable column. created_at is never touched.
func (r *AccountRepository) Update(ctx context.Context, a *entity.Account) error {
	if _, err := uuid.Parse(a.ID); err != nil {
		return repository.ErrNotFound
	}
	res, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET username = $2, password_hash = $3, email = $4, display_name = $5,
		    phone = $6, avatar_url = $7, updated_at = $8
		WHERE id = $1
	`, a.ID, a.Username, a.PasswordHash, a.Email, a.DisplayName, a.Phone, a.AvatarURL, a.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return repository.ErrNotFound
	}
	res, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) FindAll(ctx context.Context) ([]*entity.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	a := &entity.Account{}
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.DisplayName,
		&a.Phone, &a.AvatarURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return repository.ErrDuplicateUsername
		case pgerrcode.InvalidTextRepresentation:
			return repository.ErrNotFound
		}
	}
	return err
}
