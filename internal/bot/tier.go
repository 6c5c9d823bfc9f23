package bot

import "fmt"

// Tier classifies a bot's update priority. Every non-retired session
// belongs to exactly one tier.
type Tier uint8

const (
	TierEmergency Tier = iota
	TierHigh
	TierMedium
	TierLow
	TierSuspended

	tierCount
)

// String returns the stable tier name used in logs and the admin CLI.
func (t Tier) String() string {
	switch t {
	case TierEmergency:
		return "EMERGENCY"
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	case TierLow:
		return "LOW"
	case TierSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// ParseTier parses a tier name as used by the admin CLI. Case-sensitive
// on purpose: admin commands echo the canonical spelling.
func ParseTier(s string) (Tier, error) {
	for t := Tier(0); t < tierCount; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return TierSuspended, fmt.Errorf("unknown tier %q", s)
}
