package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/account-service/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername is returned by Insert and Update when the storage
	// layer rejects a username already owned by another account.
	ErrDuplicateUsername = errors.New("username already exists")
)

// AccountRepository defines storage operations for accounts.
// Username lookups and the uniqueness constraint are case-insensitive, and
// Insert/Update must enforce uniqueness atomically.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindByUsername(ctx context.Context, username string) (*entity.Account, error)
	// Insert stores a new account and returns the storage-assigned id.
	Insert(ctx context.Context, a *entity.Account) (string, error)
	Update(ctx context.Context, a *entity.Account) error
	DeleteByID(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]*entity.Account, error)
}
