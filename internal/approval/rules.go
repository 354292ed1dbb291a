package approval

import (
	"sort"

	"github.com/ronappleton/caseflow/internal/config"
)

type Rule struct {
	Amount      float64
	Levels      []Level
	ExpiryHours int
	Parallel    bool
}

func rulesFromConfig(cfg config.ApprovalConfig) []Rule {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		levels := make([]Level, 0, len(r.Levels))
		for _, l := range r.Levels {
			levels = append(levels, Level(l))
		}
		rules = append(rules, Rule{
			Amount:      r.Amount,
			Levels:      levels,
			ExpiryHours: r.ExpiryHours,
			Parallel:    r.Parallel,
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Amount < rules[j].Amount })
	return rules
}

// matchRule finds the rule with the highest floor not exceeding amount.
func matchRule(rules []Rule, amount float64) (Rule, bool) {
	var matched Rule
	found := false
	for _, r := range rules {
		if amount >= r.Amount {
			matched = r
			found = true
		} else {
			break
		}
	}
	return matched, found
}
