// Package matcher selects and fires the single best rule for a fact set:
// the rule whose matched criteria count (specificity) is highest, with
// priority and then uniform-random tie-breaks.
package matcher

import (
	"math/rand"
	"sort"
	"sync"

	"sfpm/internal/facts"
	"sfpm/internal/rule"
)

// lazy, process-wide RNG fence: the core API exposes no seeding, so
// initialization happens once, on first use, like the original's static
// rand_initialized flag.
var (
	rngOnce sync.Once
	rng     *rand.Rand
)

func sharedRNG() *rand.Rand {
	rngOnce.Do(func() {
		rng = rand.New(rand.NewSource(rand.Int63()))
	})
	return rng
}

// OptimizeRules sorts rules in place by descending criteria count. Sort
// stability is not required: ties among equal-specificity rules may be
// reordered.
func OptimizeRules(rules []*rule.Rule) {
	if len(rules) == 0 {
		return
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CriteriaCount() > rules[j].CriteriaCount()
	})
}

// MostSpecificRule returns the argmax of criteria count over rules, first
// occurrence wins ties. Returns nil for an empty slice.
func MostSpecificRule(rules []*rule.Rule) *rule.Rule {
	if len(rules) == 0 {
		return nil
	}
	best := rules[0]
	for _, r := range rules[1:] {
		if r.CriteriaCount() > best.CriteriaCount() {
			best = r
		}
	}
	return best
}

// LeastSpecificRule returns the argmin of criteria count over rules, first
// occurrence wins ties. Returns nil for an empty slice.
func LeastSpecificRule(rules []*rule.Rule) *rule.Rule {
	if len(rules) == 0 {
		return nil
	}
	best := rules[0]
	for _, r := range rules[1:] {
		if r.CriteriaCount() < best.CriteriaCount() {
			best = r
		}
	}
	return best
}

// Match selects and fires the best rule in rules for the given facts.
//
// When optimize is true, rules are sorted by descending specificity first
// and the scan stops as soon as a rule's own criteria count drops below
// the current best score, since the remaining (lower-specificity) rules
// cannot possibly beat it.
//
// Rules are filtered to those matching with the maximum criteria count
// ("specificity"); a single survivor fires directly. Multiple survivors
// are filtered again to maximum priority; a single survivor of that fires,
// otherwise one is chosen uniformly at random. A nil facts source or an
// empty/all-nil rules slice is a silent no-op: no match is not an error.
func Match(rules []*rule.Rule, src facts.Source, optimize bool) {
	if len(rules) == 0 || src == nil {
		return
	}

	if optimize {
		OptimizeRules(rules)
	}

	var accepted []*rule.Rule
	bestScore := 0

	for _, r := range rules {
		if r == nil {
			continue
		}

		eval := r.Evaluate(src)
		if eval.Matched {
			switch {
			case eval.CriteriaCount > bestScore:
				bestScore = eval.CriteriaCount
				accepted = accepted[:0]
				accepted = append(accepted, r)
			case eval.CriteriaCount == bestScore && bestScore > 0:
				accepted = append(accepted, r)
			}
		}

		if optimize && r.CriteriaCount() < bestScore {
			break
		}
	}

	if len(accepted) == 0 {
		return
	}

	selected := accepted[0]
	if len(accepted) > 1 {
		selected = selectByPriority(accepted)
	}

	selected.ExecutePayload()
}

// selectByPriority narrows candidates to those sharing the maximum
// priority, then picks the sole survivor or, failing that, one uniformly
// at random.
func selectByPriority(candidates []*rule.Rule) *rule.Rule {
	highest := candidates[0].Priority()
	for _, r := range candidates[1:] {
		if r.Priority() > highest {
			highest = r.Priority()
		}
	}

	var atHighest []*rule.Rule
	for _, r := range candidates {
		if r.Priority() == highest {
			atHighest = append(atHighest, r)
		}
	}

	if len(atHighest) == 1 {
		return atHighest[0]
	}
	return atHighest[sharedRNG().Intn(len(atHighest))]
}
