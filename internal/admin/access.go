// Package admin dispatches the bot-control commands game masters issue
// through the host's //command channel.
package admin

// AccessLevel defines a GM access level with associated permissions.
// Level 0 = normal player, 1+ = GM, 100+ = full admin.
type AccessLevel struct {
	Level               int32
	Name                string
	IsGM                bool
	CanUseAdminCommands bool
	CanControlBots      bool
}

var defaultAccessLevels = map[int32]*AccessLevel{
	0: {
		Level: 0,
		Name:  "User",
	},
	1: {
		Level:               1,
		Name:                "Moderator",
		IsGM:                true,
		CanUseAdminCommands: true,
	},
	2: {
		Level:               2,
		Name:                "Game Master",
		IsGM:                true,
		CanUseAdminCommands: true,
		CanControlBots:      true,
	},
	100: {
		Level:               100,
		Name:                "Administrator",
		IsGM:                true,
		CanUseAdminCommands: true,
		CanControlBots:      true,
	},
}

// GetAccessLevel returns the access level definition for a raw level, or
// the highest defined level at or below it. Nil for negative levels.
func GetAccessLevel(level int32) *AccessLevel {
	if level < 0 {
		return nil
	}
	if al, ok := defaultAccessLevels[level]; ok {
		return al
	}
	var best *AccessLevel
	for _, al := range defaultAccessLevels {
		if al.Level <= level && (best == nil || al.Level > best.Level) {
			best = al
		}
	}
	return best
}
