package model

// Character is the character record materialised by the login query holder.
// All three statement results (character, items, skills) must arrive before
// the record is considered complete.
type Character struct {
	ID        int64
	AccountID int64
	Name      string
	ClassID   int32
	SpecID    int32
	Level     int32
	HP        int32
	MP        int32
	Location  Location

	Items  []CharacterItem
	Skills []CharacterSkill
}

// CharacterItem is one inventory row of a character.
type CharacterItem struct {
	ItemTypeID int32
	Count      int64
	Enchant    int16
	SlotID     int32
}

// CharacterSkill is one learned-skill row of a character.
type CharacterSkill struct {
	SkillID int32
	Level   int16
}
