package admin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/udisondev/la2bots/internal/bot"
	"github.com/udisondev/la2bots/internal/diag"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
)

// BotLogCommand installs per-bot log-level overrides.
//
//	//bot-log <name> <debug|info|warn|error>
//	//bot-log clear <name>
//	//bot-log list
type BotLogCommand struct {
	Filter *diag.LevelFilter
}

func (c *BotLogCommand) Names() []string            { return []string{"bot-log"} }
func (c *BotLogCommand) RequiredAccessLevel() int32 { return 2 }

func (c *BotLogCommand) Handle(inv Invoker, args []string, reply func(string)) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: //bot-log <name> <level> | clear <name> | list")
	}

	switch strings.ToLower(args[1]) {
	case "list":
		overrides := c.Filter.List()
		if len(overrides) == 0 {
			reply("No log overrides active.")
			return nil
		}
		for _, o := range overrides {
			reply(fmt.Sprintf("%s: %s", o.Name, o.Level))
		}
		return nil

	case "clear":
		if len(args) < 3 {
			return fmt.Errorf("usage: //bot-log clear <name>")
		}
		c.Filter.Clear(args[2])
		reply(fmt.Sprintf("Log override cleared for %s.", args[2]))
		return nil

	default:
		if len(args) < 3 {
			return fmt.Errorf("usage: //bot-log <name> <level>")
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(args[2])); err != nil {
			return fmt.Errorf("unknown level %q", args[2])
		}
		c.Filter.Set(args[1], level)
		reply(fmt.Sprintf("Log level for %s set to %s.", args[1], level))
		return nil
	}
}

// BotPriorityCommand shows or forces a bot's priority tier.
//
//	//bot-priority <name>
//	//bot-priority <name> <EMERGENCY|HIGH|MEDIUM|LOW|SUSPENDED>
type BotPriorityCommand struct {
	Manager  *bot.Manager
	Priority *bot.PriorityManager
}

func (c *BotPriorityCommand) Names() []string            { return []string{"bot-priority"} }
func (c *BotPriorityCommand) RequiredAccessLevel() int32 { return 2 }

func (c *BotPriorityCommand) Handle(inv Invoker, args []string, reply func(string)) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: //bot-priority <name> [tier]")
	}

	s, ok := c.Manager.GetByName(args[1])
	if !ok {
		return fmt.Errorf("no bot named %q", args[1])
	}
	eid := s.EID()

	if len(args) == 2 {
		reply(fmt.Sprintf("%s: %s", s.Name(), c.Priority.Tier(eid)))
		return nil
	}

	tier, err := bot.ParseTier(args[2])
	if err != nil {
		return err
	}

	got := c.Priority.SetTier(eid, tier)
	s.SetSuspended(got == bot.TierSuspended)
	if got != tier {
		reply(fmt.Sprintf("%s kept %s: %s population is at its cap.", s.Name(), got, tier))
		return nil
	}
	reply(fmt.Sprintf("%s moved to %s.", s.Name(), got))
	return nil
}

// BotStatsCommand dumps the subsystem counters, or one bot's.
//
//	//bot-stats
//	//bot-stats <name>
type BotStatsCommand struct {
	Manager   *bot.Manager
	Priority  *bot.PriorityManager
	Collector *metrics.Collector
	Bus       *event.Bus
	Entry     *bot.EntryQueue
	Pool      *bot.Pool
}

func (c *BotStatsCommand) Names() []string            { return []string{"bot-stats"} }
func (c *BotStatsCommand) RequiredAccessLevel() int32 { return 1 }

func (c *BotStatsCommand) Handle(inv Invoker, args []string, reply func(string)) error {
	if len(args) > 1 {
		return c.botStats(args[1], reply)
	}

	reply(fmt.Sprintf("Active bots: %d (pool free: %d)",
		c.Manager.Count(), c.Pool.AvailableCount()))

	pops := c.Priority.Populations()
	deficits := c.Priority.Deficits()
	for t := bot.TierEmergency; t <= bot.TierSuspended; t++ {
		line := fmt.Sprintf("%-9s %5d", t, pops[t])
		if deficits[t] > 0 {
			line += fmt.Sprintf("  (deficit %d)", deficits[t])
		}
		reply(line)
	}

	snap := c.Collector.Global()
	for _, m := range metrics.Metrics() {
		if snap.Totals[m] > 0 {
			reply(fmt.Sprintf("%s: %d", m, snap.Totals[m]))
		}
	}

	bus := c.Bus.StatsSnapshot()
	reply(fmt.Sprintf("events published: %d, subscriptions: %d, handler panics: %d",
		bus.Published, bus.Subscriptions, bus.HandlerPanics))

	entry := c.Entry.Stats()
	reply(fmt.Sprintf("world entry: %d queued, %d active, %d completed, %d failed (avg %s)",
		entry.Queued, entry.Active, entry.Completed, entry.Failed, entry.AvgEntryDur))

	interned, _ := diag.InternStats()
	reply(fmt.Sprintf("interned strings: %d", interned))
	return nil
}

func (c *BotStatsCommand) botStats(name string, reply func(string)) error {
	s, ok := c.Manager.GetByName(name)
	if !ok {
		return fmt.Errorf("no bot named %q", name)
	}

	eid := s.EID()
	reply(fmt.Sprintf("%s (eid %x) tier %s state %s",
		s.Name(), uint64(eid), c.Priority.Tier(eid), s.State()))

	counters := c.Collector.GetBot(uint64(eid))
	for _, m := range metrics.Metrics() {
		if counters[m] > 0 {
			reply(fmt.Sprintf("%s: %d", m, counters[m]))
		}
	}
	return nil
}
