package rules

import (
	"fmt"

	"github.com/roach88/switchyard/internal/record"
)

// Lint problem codes (L100-L199).
const (
	// LintReservedDestination flags a rule routing into a reserved table.
	LintReservedDestination = "L100"

	// LintShadowedCode flags a rule whose code an earlier rule already
	// claims; resolution stops at the first match.
	LintShadowedCode = "L101"

	// LintShadowedDefault flags a default rule a later default overrides;
	// the last default flag wins.
	LintShadowedDefault = "L102"

	// LintBlankCode flags a non-default rule whose code canonicalizes to
	// nothing; no routable record can ever match it.
	LintBlankCode = "L103"
)

// Problem severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Problem is one lint finding against a ruleset. Rule indices are
// 1-based to match the configuration rows an operator sees.
type Problem struct {
	Rule     int    `json:"rule"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// String renders the problem the way the seed verb prints it.
func (p Problem) String() string {
	return fmt.Sprintf("[%s] rule %d: %s", p.Code, p.Rule, p.Message)
}

// Lint checks a ruleset for hazards the resolver itself tolerates.
// Returns all problems found (does not fail-fast).
//
// Shadowed codes and overridden defaults are warnings: resolution has
// well-defined behavior for both (first exact match wins, last default
// wins), the flagged rules are just dead weight. Routing into one of
// the reserved tables is an error: a destination that is also the
// staging table would feed routed rows straight back into the sweep.
func Lint(ruleset []Rule, reserved ...string) []Problem {
	var problems []Problem

	seenCodes := make(map[string]int)
	lastDefault := 0
	for i, rule := range ruleset {
		if rule.Default {
			lastDefault = i + 1
		}
	}

	for i, rule := range ruleset {
		num := i + 1

		if rule.Destination != "" {
			for _, name := range reserved {
				if record.SameName(rule.Destination, name) {
					problems = append(problems, Problem{
						Rule:     num,
						Code:     LintReservedDestination,
						Severity: SeverityError,
						Message: fmt.Sprintf("destination %q collides with the reserved table %q",
							rule.Destination, name),
					})
				}
			}
		}

		if rule.Default && num != lastDefault {
			problems = append(problems, Problem{
				Rule:     num,
				Code:     LintShadowedDefault,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("default is overridden by rule %d; the last default flag wins",
					lastDefault),
			})
		}

		if rule.Default {
			continue
		}

		code := record.Canonical(rule.Code)
		if code == "" {
			problems = append(problems, Problem{
				Rule:     num,
				Code:     LintBlankCode,
				Severity: SeverityWarning,
				Message:  "code is blank after canonicalization; no record can match this rule",
			})
			continue
		}
		if first, ok := seenCodes[code]; ok {
			problems = append(problems, Problem{
				Rule:     num,
				Code:     LintShadowedCode,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("code %q is already claimed by rule %d; the first match wins",
					rule.Code, first),
			})
			continue
		}
		seenCodes[code] = num
	}

	return problems
}

// HasErrors reports whether any problem carries error severity.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}
