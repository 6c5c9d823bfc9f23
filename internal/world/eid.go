package world

import "sync/atomic"

// EID is the opaque 64-bit identifier of an in-world entity.
// The host guarantees uniqueness; 0 is never a valid EID.
type EID uint64

// InvalidEID is the zero EID, used for "no entity".
const InvalidEID EID = 0

// EID ranges (convention):
//
//	0x0000000000000000 - 0x0FFFFFFFFFFFFFFF: Reserved (0 = invalid/mock objects)
//	0x1000000000000000 - 0x1FFFFFFFFFFFFFFF: Players
//	0x2000000000000000 - 0x2FFFFFFFFFFFFFFF: Bots
//	0x3000000000000000 - 0xFFFFFFFFFFFFFFFF: Reserved for future use
const (
	playerEIDBase = EID(0x1000000000000000)
	botEIDBase    = EID(0x2000000000000000)
)

// IsBot reports whether the EID falls in the bot range.
func (id EID) IsBot() bool {
	return id >= botEIDBase && id < botEIDBase+0x1000000000000000
}

// EIDGenerator generates unique entity IDs.
// Centralized generation prevents collisions between players and bots.
type EIDGenerator struct {
	nextPlayerEID atomic.Uint64
	nextBotEID    atomic.Uint64
}

// NewEIDGenerator creates a new ID generator.
func NewEIDGenerator() *EIDGenerator {
	gen := &EIDGenerator{}
	gen.nextPlayerEID.Store(uint64(playerEIDBase))
	gen.nextBotEID.Store(uint64(botEIDBase))
	return gen
}

// NextPlayerEID generates the next unique player EID.
// Thread-safe via atomic increment.
func (g *EIDGenerator) NextPlayerEID() EID {
	return EID(g.nextPlayerEID.Add(1))
}

// NextBotEID generates the next unique bot EID.
// A recycled session is always re-bound under a fresh EID, so a stale
// EID held by a peer resolves to "not found" instead of the new occupant.
func (g *EIDGenerator) NextBotEID() EID {
	return EID(g.nextBotEID.Add(1))
}

// Global ID generator (singleton pattern).
var globalEIDGenerator = NewEIDGenerator()

// IDGenerator returns the global EID generator.
func IDGenerator() *EIDGenerator {
	return globalEIDGenerator
}
