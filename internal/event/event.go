// Package event implements the publish/subscribe layer that fans gameplay
// events out to interested bot instances.
package event

import (
	"time"

	"github.com/udisondev/la2bots/internal/world"
)

// Type tags an event with its kind.
type Type uint8

const (
	TypeBotAdded Type = iota
	TypeBotRemoved
	TypeBotDied
	TypeBotRevived
	TypeWorldEntered
	TypeCombatStarted
	TypeCombatEnded
	TypeDamageTaken
	TypePartyChanged
	TypeChatMessage

	typeCount
)

// String returns the stable event type name.
func (t Type) String() string {
	switch t {
	case TypeBotAdded:
		return "BotAdded"
	case TypeBotRemoved:
		return "BotRemoved"
	case TypeBotDied:
		return "BotDied"
	case TypeBotRevived:
		return "BotRevived"
	case TypeWorldEntered:
		return "WorldEntered"
	case TypeCombatStarted:
		return "CombatStarted"
	case TypeCombatEnded:
		return "CombatEnded"
	case TypeDamageTaken:
		return "DamageTaken"
	case TypePartyChanged:
		return "PartyChanged"
	case TypeChatMessage:
		return "ChatMessage"
	default:
		return "Unknown"
	}
}

// Event is a tagged record delivered to subscribers.
// Seq is monotonically increasing per bus.
type Event struct {
	Type    Type
	Seq     uint64
	Time    time.Time
	Subject world.EID
	Payload any
}

// Handler receives delivered events. Handlers must not block and must not
// publish or subscribe synchronously on the same bus (re-entrancy is
// undefined). Closing a subscription from inside a handler is safe.
type Handler func(Event)

// Predicate filters delivery; nil means "all events of the subscribed types".
type Predicate func(Event) bool

// Subscriber is the object-subscription contract: a subject (typically a
// bot AI) receives events directly and must Detach before destruction.
type Subscriber interface {
	OnEvent(Event)
}
