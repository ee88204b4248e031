package quality

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultTiers is the built-in importance map for the market fields the
// system collects. Price and volume gate everything; indicators degrade
// gracefully. Fields not listed here are treated as low.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		"price":           TierCritical,
		"volume":          TierCritical,
		"open_interest":   TierHigh,
		"funding_rate":    TierHigh,
		"ema_20":          TierHigh,
		"ema_50":          TierHigh,
		"rsi":             TierHigh,
		"oi_delta":        TierMedium,
		"btc_dominance":   TierMedium,
		"btc_correlation": TierMedium,
		"atr":             TierMedium,
		"obv":             TierMedium,
	}
}

// ParseTier converts a config string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierCritical, TierHigh, TierMedium, TierLow:
		return Tier(s), nil
	default:
		return "", eris.Errorf("quality: unknown tier %q", s)
	}
}

// LoadTiers reads a tier-map override file and merges it over the built-in
// defaults. The YAML has a top-level "tiers" key mapping field names to tier
// names.
func LoadTiers(path string) (map[string]Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: read tier file %s", path)
	}

	var wrapper struct {
		Tiers map[string]string `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "quality: parse tier file")
	}

	tiers := DefaultTiers()
	for field, name := range wrapper.Tiers {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, eris.Wrapf(err, "quality: field %s", field)
		}
		tiers[field] = tier
	}
	return tiers, nil
}
