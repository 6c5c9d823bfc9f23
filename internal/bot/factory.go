package bot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/udisondev/la2bots/internal/event"
)

// ErrNoFactory is the factory-miss signal: no constructor is registered
// for the requested class, spec or tag.
var ErrNoFactory = errors.New("bot: no AI constructor registered")

// Constructor customizes a freshly-built AI for one specialisation,
// typically by adding behaviours and overriding trigger values.
type Constructor func(ai *AI) error

type classSpecKey struct {
	classID int32
	specID  int32
}

// Factory attaches AI front-ends to freshly-bound sessions.
// Registration-based: collaborators register constructors by class, by
// class+spec, or by tag (PvP/PvE/Raid) before any bot boots.
type Factory struct {
	deps AIDeps

	mu          sync.RWMutex
	byClass     map[int32]Constructor
	byClassSpec map[classSpecKey]Constructor
	byTag       map[string]Constructor
}

// NewFactory creates a factory wired to the given dependencies.
func NewFactory(deps AIDeps) *Factory {
	return &Factory{
		deps:        deps,
		byClass:     make(map[int32]Constructor, 16),
		byClassSpec: make(map[classSpecKey]Constructor, 32),
		byTag:       make(map[string]Constructor, 8),
	}
}

// RegisterClass registers a constructor for every spec of a class.
func (f *Factory) RegisterClass(classID int32, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byClass[classID] = ctor
}

// RegisterClassSpec registers a constructor for one class+spec pair.
// Takes precedence over the per-class constructor.
func (f *Factory) RegisterClassSpec(classID, specID int32, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byClassSpec[classSpecKey{classID, specID}] = ctor
}

// RegisterTagged registers a tagged specialisation (e.g. "pvp", "raid").
func (f *Factory) RegisterTagged(tag string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byTag[tag] = ctor
}

// Create builds an AI for the session's class and spec.
// Returns a non-nil AI or ErrNoFactory, nothing else.
func (f *Factory) Create(s *Session) (*AI, error) {
	ch := s.Character()
	if ch == nil {
		return nil, fmt.Errorf("session %d has no character: %w", uint64(s.EID()), ErrNoFactory)
	}

	f.mu.RLock()
	ctor, ok := f.byClassSpec[classSpecKey{ch.ClassID, ch.SpecID}]
	if !ok {
		ctor, ok = f.byClass[ch.ClassID]
	}
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("class %d spec %d: %w", ch.ClassID, ch.SpecID, ErrNoFactory)
	}

	return f.build(s, ctor)
}

// CreateTagged builds an AI from a tagged specialisation.
func (f *Factory) CreateTagged(tag string, s *Session) (*AI, error) {
	f.mu.RLock()
	ctor, ok := f.byTag[tag]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tag %q: %w", tag, ErrNoFactory)
	}
	return f.build(s, ctor)
}

func (f *Factory) build(s *Session, ctor Constructor) (*AI, error) {
	ai := newAI(f.deps, s)
	f.installDefaults(ai)

	if err := ctor(ai); err != nil {
		return nil, fmt.Errorf("constructing AI for session %d: %w", uint64(s.EID()), err)
	}

	s.ai = ai
	if f.deps.Bus != nil {
		f.deps.Bus.Attach(ai,
			event.TypeCombatStarted, event.TypeCombatEnded,
			event.TypeDamageTaken, event.TypeBotDied, event.TypeBotRevived)
	}
	return ai, nil
}

// installDefaults seeds the trigger/value set every AI starts from.
func (f *Factory) installDefaults(ai *AI) {
	ai.SetValue("human_notice_range", 600)
	ai.SetValue("flee_hp_ratio", 0.2)
	ai.SetValue("rest_mp_ratio", 0.3)
	ai.SetValue("assist_range", 1200)
}
