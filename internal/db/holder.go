package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/udisondev/la2bots/internal/model"
)

// ErrCharacterNotFound is returned when the holder's character statement
// yields no row.
var ErrCharacterNotFound = errors.New("db: character not found")

// CharacterHolder is the fixed prepared-statement set that materialises a
// character: the character row, its items and its skills. The three
// statements run as one unit; a partial result fails the whole holder and
// leaves Character nil.
type CharacterHolder struct {
	CharacterID int64

	// Character is set only after Execute returns nil.
	Character *model.Character
}

// NewCharacterHolder creates a holder for one character load.
func NewCharacterHolder(characterID int64) *CharacterHolder {
	return &CharacterHolder{CharacterID: characterID}
}

// Execute runs the statement set. Runs on an executor worker goroutine.
func (h *CharacterHolder) Execute(ctx context.Context, db *DB) error {
	ch, err := h.loadCharacter(ctx, db)
	if err != nil {
		return err
	}

	if ch.Items, err = h.loadItems(ctx, db); err != nil {
		return fmt.Errorf("loading items for character %d: %w", h.CharacterID, err)
	}
	if ch.Skills, err = h.loadSkills(ctx, db); err != nil {
		return fmt.Errorf("loading skills for character %d: %w", h.CharacterID, err)
	}

	h.Character = ch
	return nil
}

func (h *CharacterHolder) loadCharacter(ctx context.Context, db *DB) (*model.Character, error) {
	var ch model.Character
	var heading int32
	err := db.pool.QueryRow(ctx,
		`SELECT id, account_id, name, class_id, spec_id, level, hp, mp, x, y, z, heading
		 FROM bot_characters WHERE id = $1`, h.CharacterID,
	).Scan(&ch.ID, &ch.AccountID, &ch.Name, &ch.ClassID, &ch.SpecID,
		&ch.Level, &ch.HP, &ch.MP,
		&ch.Location.X, &ch.Location.Y, &ch.Location.Z, &heading)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("character %d: %w", h.CharacterID, ErrCharacterNotFound)
		}
		return nil, fmt.Errorf("querying character %d: %w", h.CharacterID, err)
	}
	ch.Location.Heading = uint16(heading)
	return &ch, nil
}

func (h *CharacterHolder) loadItems(ctx context.Context, db *DB) ([]model.CharacterItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT item_type_id, count, enchant, slot_id
		 FROM bot_character_items WHERE character_id = $1`, h.CharacterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.CharacterItem
	for rows.Next() {
		var it model.CharacterItem
		if err := rows.Scan(&it.ItemTypeID, &it.Count, &it.Enchant, &it.SlotID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (h *CharacterHolder) loadSkills(ctx context.Context, db *DB) ([]model.CharacterSkill, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT skill_id, level
		 FROM bot_character_skills WHERE character_id = $1`, h.CharacterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skills []model.CharacterSkill
	for rows.Next() {
		var sk model.CharacterSkill
		if err := rows.Scan(&sk.SkillID, &sk.Level); err != nil {
			return nil, err
		}
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}
