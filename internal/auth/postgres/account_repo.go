// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/pkg/errutil"
)

// favoriteAttempts bounds the retry when a favorite mutation matches no row
// and the follow-up classification sees the opposite membership.
const favoriteAttempts = 3

const accountColumns = `id, username, password_hash, favorites, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Querier) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. The unique constraint on username is the
// only duplicate check.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	favorites := account.Favorites
	if favorites == nil {
		favorites = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, password_hash, favorites, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		account.ID.String(),
		account.Username,
		account.PasswordHash,
		favorites,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("username", account.Username).
				Wrap(errutil.KindDuplicateUsername)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, accountNotFound("id", id.String())
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByUsername retrieves an account by exact, case-sensitive username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, accountNotFound("username", username)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_USERNAME_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return account, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_HASH_FAILED").
			With("operation", "update password_hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return accountNotFound("id", id.String())
	}
	return nil
}

// AddFavorite appends code in a single conditional UPDATE, so concurrent
// adds of the same code on one account cannot both succeed.
func (r *AccountRepository) AddFavorite(ctx context.Context, id ulid.ULID, code string) (*auth.Account, error) {
	for range favoriteAttempts {
		row := r.pool.QueryRow(ctx, `
			UPDATE accounts
			SET favorites = array_append(favorites, $2::text), updated_at = NOW()
			WHERE id = $1 AND NOT ($2::text = ANY(favorites))
			RETURNING `+accountColumns,
			id.String(), code)

		account, err := scanAccount(row)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code("FAVORITE_ADD_FAILED").
				With("operation", "append favorite").
				With("id", id.String()).
				With("code", code).
				Wrap(err)
		}

		present, err := r.hasFavorite(ctx, id, code)
		if err != nil {
			return nil, err
		}
		if present {
			return nil, oops.Code("FAVORITE_EXISTS").
				With("id", id.String()).
				With("code", code).
				Wrap(errutil.KindAlreadyFavorited)
		}
		// Removed concurrently between the two statements; try again.
	}
	return nil, oops.Code("FAVORITE_ADD_CONTENDED").
		With("id", id.String()).
		With("code", code).
		Errorf("favorite add did not settle after %d attempts", favoriteAttempts)
}

// RemoveFavorite drops code in a single conditional UPDATE.
func (r *AccountRepository) RemoveFavorite(ctx context.Context, id ulid.ULID, code string) (*auth.Account, error) {
	for range favoriteAttempts {
		row := r.pool.QueryRow(ctx, `
			UPDATE accounts
			SET favorites = array_remove(favorites, $2::text), updated_at = NOW()
			WHERE id = $1 AND $2::text = ANY(favorites)
			RETURNING `+accountColumns,
			id.String(), code)

		account, err := scanAccount(row)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code("FAVORITE_REMOVE_FAILED").
				With("operation", "remove favorite").
				With("id", id.String()).
				With("code", code).
				Wrap(err)
		}

		present, err := r.hasFavorite(ctx, id, code)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, oops.Code("FAVORITE_MISSING").
				With("id", id.String()).
				With("code", code).
				Wrap(errutil.KindNotFavorited)
		}
	}
	return nil, oops.Code("FAVORITE_REMOVE_CONTENDED").
		With("id", id.String()).
		With("code", code).
		Errorf("favorite remove did not settle after %d attempts", favoriteAttempts)
}

// hasFavorite classifies a favorite mutation that matched no row.
func (r *AccountRepository) hasFavorite(ctx context.Context, id ulid.ULID, code string) (bool, error) {
	var present bool
	err := r.pool.QueryRow(ctx, `
		SELECT $2::text = ANY(favorites) FROM accounts WHERE id = $1
	`, id.String(), code).Scan(&present)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, accountNotFound("id", id.String())
	}
	if err != nil {
		return false, oops.Code("FAVORITE_CHECK_FAILED").
			With("operation", "check favorite membership").
			With("id", id.String()).
			Wrap(err)
	}
	return present, nil
}

// Delete removes an account. Its sessions go with it via ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return accountNotFound("id", id.String())
	}
	return nil
}

func accountNotFound(key, value string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").
		With(key, value).
		Wrap(errutil.KindAccountNotFound)
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr        string
		username     string
		passwordHash string
		favorites    []string
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(&idStr, &username, &passwordHash, &favorites, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	if favorites == nil {
		favorites = []string{}
	}

	return &auth.Account{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Favorites:    favorites,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
