package model

import "time"

// BotAccount represents a bot account stored in the database.
type BotAccount struct {
	ID           int64
	Login        string
	PasswordHash string
	AccessLevel  int
	SessionToken string
	LastActive   time.Time
}
