package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/udisondev/la2bots/internal/model"
)

// CharacterRepository stores bot character rows. Reads during login go
// through CharacterHolder; this repository covers the write paths and
// startup listings.
type CharacterRepository struct {
	db *DB
}

// NewCharacterRepository creates the repository.
func NewCharacterRepository(db *DB) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// ListByAccount returns the character ids belonging to an account.
func (r *CharacterRepository) ListByAccount(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT id FROM bot_characters WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing characters for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning character id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a new character and returns its id.
func (r *CharacterRepository) Create(ctx context.Context, ch *model.Character) (int64, error) {
	var id int64
	err := r.db.pool.QueryRow(ctx,
		`INSERT INTO bot_characters (account_id, name, class_id, spec_id, level, hp, mp, x, y, z, heading)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		ch.AccountID, ch.Name, ch.ClassID, ch.SpecID, ch.Level, ch.HP, ch.MP,
		ch.Location.X, ch.Location.Y, ch.Location.Z, int32(ch.Location.Heading),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating character %q: %w", ch.Name, err)
	}
	return id, nil
}

// UpdateLocationTx updates a character's saved position inside a caller
// transaction. Used by the periodic save path.
func (r *CharacterRepository) UpdateLocationTx(ctx context.Context, tx pgx.Tx, characterID int64, loc model.Location) error {
	_, err := tx.Exec(ctx,
		`UPDATE bot_characters SET x = $1, y = $2, z = $3, heading = $4 WHERE id = $5`,
		loc.X, loc.Y, loc.Z, int32(loc.Heading), characterID)
	if err != nil {
		return fmt.Errorf("updating location for character %d: %w", characterID, err)
	}
	return nil
}

// UpdateVitalsTx updates hp/mp/level inside a caller transaction.
func (r *CharacterRepository) UpdateVitalsTx(ctx context.Context, tx pgx.Tx, characterID int64, hp, mp, level int32) error {
	_, err := tx.Exec(ctx,
		`UPDATE bot_characters SET hp = $1, mp = $2, level = $3 WHERE id = $4`,
		hp, mp, level, characterID)
	if err != nil {
		return fmt.Errorf("updating vitals for character %d: %w", characterID, err)
	}
	return nil
}
