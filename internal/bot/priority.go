package bot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/world"
)

// TierConfig is one tier's scheduling parameters.
// Interval 0 means "never updated" (SUSPENDED).
type TierConfig struct {
	Interval      uint64 // update every N ticks
	MaxPopulation int    // 0 = unbounded
}

// DefaultTierConfigs returns the default 1/2/4/8/never intervals.
func DefaultTierConfigs() [5]TierConfig {
	return [5]TierConfig{
		TierEmergency: {Interval: 1, MaxPopulation: 200},
		TierHigh:      {Interval: 2, MaxPopulation: 1000},
		TierMedium:    {Interval: 4},
		TierLow:       {Interval: 8},
		TierSuspended: {Interval: 0},
	}
}

// Status is the per-bot situation snapshot AutoAdjust classifies on.
// The session's AI fills it from host state each tick.
type Status struct {
	InCombat          bool
	Hostile           bool
	LastDamagedAt     time.Time
	PartyWithHuman    bool
	HiddenFromPlayers bool
	IdleSince         time.Time
}

// AutoAdjust thresholds. Collaborator-tunable via SetThresholds.
type Thresholds struct {
	RecentDamage  time.Duration // hostile damage newer than this forces EMERGENCY
	IdleToLow     time.Duration
	IdleToSuspend time.Duration
	SlowMicros    float64 // EWMA above this demotes after SlowStreak updates
	SlowStreak    int
}

// DefaultThresholds returns the thresholds AutoAdjust ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RecentDamage:  3 * time.Second,
		IdleToLow:     30 * time.Second,
		IdleToSuspend: 5 * time.Minute,
		SlowMicros:    5000,
		SlowStreak:    10,
	}
}

type botPriority struct {
	tier        Tier
	offset      uint64 // stable hash of the EID, spreads same-tier bots across ticks
	avgMicros   float64
	slowStreak  int
	updateStart time.Time // zero when no update in flight
}

// PriorityManager classifies each bot into a tier and gates its per-tick
// eligibility, keeping per-tick CPU bounded and fair.
type PriorityManager struct {
	mu          sync.RWMutex
	cfg         [tierCount]TierConfig
	thresholds  Thresholds
	bots        map[world.EID]*botPriority
	populations [tierCount]int
	deficits    [tierCount]uint64 // promotions refused by population caps

	collector *metrics.Collector
}

// NewPriorityManager creates a manager with the given tier configuration.
func NewPriorityManager(cfg [5]TierConfig, collector *metrics.Collector) *PriorityManager {
	pm := &PriorityManager{
		thresholds: DefaultThresholds(),
		bots:       make(map[world.EID]*botPriority, 1024),
		collector:  collector,
	}
	copy(pm.cfg[:], cfg[:])
	return pm
}

// SetThresholds replaces the AutoAdjust thresholds.
func (pm *PriorityManager) SetThresholds(t Thresholds) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.thresholds = t
}

// Track registers a bot at the given tier. The tick offset is a stable
// hash of the EID so same-tier bots spread across ticks.
func (pm *PriorityManager) Track(eid world.EID, tier Tier) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.bots[eid]; exists {
		return
	}
	pm.bots[eid] = &botPriority{tier: tier, offset: eidHash(eid)}
	pm.populations[tier]++
}

// Forget drops a bot on session retirement.
func (pm *PriorityManager) Forget(eid world.EID) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if bp, ok := pm.bots[eid]; ok {
		pm.populations[bp.tier]--
		delete(pm.bots, eid)
	}
}

// Tier returns a bot's current tier. Untracked bots report SUSPENDED.
func (pm *PriorityManager) Tier(eid world.EID) Tier {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if bp, ok := pm.bots[eid]; ok {
		return bp.tier
	}
	return TierSuspended
}

// SetTier forces a bot's tier, e.g. from the admin CLI or stall handling.
// Population caps are best-effort: a refused promotion keeps the previous
// tier and records the deficit. Returns the tier the bot ended up in.
func (pm *PriorityManager) SetTier(eid world.EID, tier Tier) Tier {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.setTierLocked(eid, tier)
}

func (pm *PriorityManager) setTierLocked(eid world.EID, tier Tier) Tier {
	bp, ok := pm.bots[eid]
	if !ok {
		return TierSuspended
	}
	if bp.tier == tier {
		return tier
	}

	// Caps only gate promotions; demotion is always allowed.
	if tier < bp.tier {
		limit := pm.cfg[tier].MaxPopulation
		if limit > 0 && pm.populations[tier] >= limit {
			pm.deficits[tier]++
			if pm.collector != nil {
				pm.collector.Record(uint64(eid), metrics.MetricPromotionDeficit)
			}
			return bp.tier
		}
	}

	pm.populations[bp.tier]--
	pm.populations[tier]++
	bp.tier = tier
	return tier
}

// ShouldUpdate reports whether a bot is eligible on the given tick:
// tick mod interval(tier) == offset mod interval. Suspended and untracked
// bots are never eligible.
func (pm *PriorityManager) ShouldUpdate(eid world.EID, tick uint64) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	bp, ok := pm.bots[eid]
	if !ok {
		return false
	}
	interval := pm.cfg[bp.tier].Interval
	if interval == 0 {
		return false
	}
	return tick%interval == bp.offset%interval
}

// AutoAdjust re-classifies a bot from its situation snapshot.
func (pm *PriorityManager) AutoAdjust(eid world.EID, st Status, now time.Time) Tier {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	bp, ok := pm.bots[eid]
	if !ok {
		return TierSuspended
	}
	th := pm.thresholds

	switch {
	case st.Hostile && !st.LastDamagedAt.IsZero() && now.Sub(st.LastDamagedAt) < th.RecentDamage:
		return pm.setTierLocked(eid, TierEmergency)
	case st.InCombat:
		// At least HIGH: never demote an EMERGENCY bot here.
		if bp.tier > TierHigh {
			return pm.setTierLocked(eid, TierHigh)
		}
		return bp.tier
	case !st.IdleSince.IsZero() && now.Sub(st.IdleSince) > th.IdleToSuspend:
		return pm.setTierLocked(eid, TierSuspended)
	case !st.IdleSince.IsZero() && now.Sub(st.IdleSince) > th.IdleToLow && !st.PartyWithHuman && st.HiddenFromPlayers:
		return pm.setTierLocked(eid, TierLow)
	default:
		if bp.tier == TierSuspended {
			return bp.tier
		}
		return pm.setTierLocked(eid, TierMedium)
	}
}

// RecordUpdateStart stamps the beginning of an AI update, for the stall
// detector to match against.
func (pm *PriorityManager) RecordUpdateStart(eid world.EID, now time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if bp, ok := pm.bots[eid]; ok {
		bp.updateStart = now
	}
}

// RecordUpdateEnd feeds the cost moving average and demotes bots that are
// consistently slow by one tier.
func (pm *PriorityManager) RecordUpdateEnd(eid world.EID, micros uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	bp, ok := pm.bots[eid]
	if !ok {
		return
	}
	bp.updateStart = time.Time{}

	const alpha = 0.2
	bp.avgMicros = alpha*float64(micros) + (1-alpha)*bp.avgMicros

	if bp.avgMicros > pm.thresholds.SlowMicros {
		bp.slowStreak++
		if bp.slowStreak >= pm.thresholds.SlowStreak && bp.tier < TierLow {
			demoted := bp.tier + 1
			slog.Warn("demoting consistently slow bot",
				"eid", uint64(eid), "avgMicros", bp.avgMicros,
				"from", bp.tier, "to", demoted)
			pm.setTierLocked(eid, demoted)
			bp.slowStreak = 0
		}
	} else {
		bp.slowStreak = 0
	}
}

// DetectStalled returns bots whose update started before now-threshold and
// has not ended. The deadlock detector captures forensics for each.
func (pm *PriorityManager) DetectStalled(now time.Time, threshold time.Duration) []world.EID {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var stalled []world.EID
	for eid, bp := range pm.bots {
		if !bp.updateStart.IsZero() && now.Sub(bp.updateStart) > threshold {
			stalled = append(stalled, eid)
		}
	}
	return stalled
}

// Populations returns the per-tier population snapshot.
func (pm *PriorityManager) Populations() [5]int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.populations
}

// Deficits returns per-tier counts of cap-refused promotions.
func (pm *PriorityManager) Deficits() [5]uint64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.deficits
}

// eidHash is FNV-1a over the EID bytes; stable across runs.
func eidHash(eid world.EID) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	v := uint64(eid)
	for i := 0; i < 8; i++ {
		h ^= (v >> (i * 8)) & 0xFF
		h *= prime64
	}
	return h
}
