package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/udisondev/la2bots/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownAccount is returned when auto-creation is disabled and the
// login does not exist.
var ErrUnknownAccount = errors.New("db: unknown bot account")

// AccountRepository stores bot accounts.
type AccountRepository struct {
	db         *DB
	autoCreate bool
}

// NewAccountRepository creates the repository. With autoCreate disabled,
// GetOrCreateAccount refuses logins that do not already exist.
func NewAccountRepository(db *DB, autoCreate bool) *AccountRepository {
	return &AccountRepository{db: db, autoCreate: autoCreate}
}

// HashPassword hashes a bot account password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// GetAccount retrieves an account by login.
// Returns nil, nil if the account does not exist.
func (r *AccountRepository) GetAccount(ctx context.Context, login string) (*model.BotAccount, error) {
	login = strings.ToLower(login)
	var acc model.BotAccount
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, login, password, access_level, session_token, last_active
		 FROM bot_accounts WHERE login = $1`, login,
	).Scan(&acc.ID, &acc.Login, &acc.PasswordHash, &acc.AccessLevel, &acc.SessionToken, &acc.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying bot account %q: %w", login, err)
	}
	return &acc, nil
}

// GetOrCreateAccount atomically gets an existing account or auto-creates
// one with a bcrypt hash and a fresh session token. INSERT ON CONFLICT DO
// NOTHING protects against concurrent spawns of the same login.
func (r *AccountRepository) GetOrCreateAccount(ctx context.Context, login, password string) (*model.BotAccount, error) {
	login = strings.ToLower(login)

	if !r.autoCreate {
		acc, err := r.GetAccount(ctx, login)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, fmt.Errorf("account %q: %w", login, ErrUnknownAccount)
		}
		return acc, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	_, err = r.db.pool.Exec(ctx,
		`INSERT INTO bot_accounts (login, password, session_token, last_active)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (login) DO NOTHING`,
		login, hash, uuid.NewString(), time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting bot account %q: %w", login, err)
	}

	acc, err := r.GetAccount(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("getting bot account after insert %q: %w", login, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("bot account %q not found after insert", login)
	}
	return acc, nil
}

// UpdateLastActive touches last_active and rotates the session token.
func (r *AccountRepository) UpdateLastActive(ctx context.Context, login string) error {
	_, err := r.db.pool.Exec(ctx,
		`UPDATE bot_accounts SET last_active = $1, session_token = $2 WHERE login = $3`,
		time.Now(), uuid.NewString(), strings.ToLower(login),
	)
	if err != nil {
		return fmt.Errorf("updating last active for %q: %w", login, err)
	}
	return nil
}
