package daterule

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Resolver matches rule text against its vocabulary in priority order.
// The zero value is not usable; construct with New.
type Resolver struct {
	vocab Vocabulary
	log   zerolog.Logger
}

// New returns a Resolver over the default vocabulary with logging
// disabled.
func New() Resolver {
	return Resolver{vocab: DefaultVocabulary(), log: zerolog.Nop()}
}

// WithVocabulary returns a copy of the resolver using vocab instead of
// the default table.
func (r Resolver) WithVocabulary(vocab Vocabulary) Resolver {
	if len(vocab) == 0 {
		return r
	}
	r.vocab = vocab
	return r
}

// WithLogger returns a copy of the resolver emitting diagnostics to log.
func (r Resolver) WithLogger(log zerolog.Logger) Resolver {
	r.log = log
	return r
}

// Resolve turns a rule string into a concrete date.
//
// Returns (date, true, nil) on a match; (zero, false, nil) when the rule
// intends no fixed date (empty or "ongoing"); and (zero, false, err)
// when no vocabulary entry matched. It never panics: callers batch over
// many tasks and a bad rule must not abort the batch.
func (r Resolver) Resolve(rule string, anchors Anchors) (time.Time, bool, error) {
	text := strings.ToLower(strings.TrimSpace(rule))
	if text == "" || text == "ongoing" {
		return time.Time{}, false, nil
	}
	for _, g := range r.vocab {
		if !containsAny(text, g.Keywords) {
			continue
		}
		for _, rl := range g.Rules {
			if rl.Modifier != "" && !strings.Contains(text, rl.Modifier) {
				continue
			}
			base, err := anchors.At(rl.Anchor)
			if err != nil {
				return time.Time{}, false, err
			}
			return apply(rl.Compute, base), true, nil
		}
		// Keyword hit but no modifier: fall through to the next group.
	}
	err := &UnresolvableRuleError{Rule: rule}
	r.log.Warn().Str("rule", rule).Msg("date rule did not match any vocabulary group")
	return time.Time{}, false, err
}

// ResolveString is Resolve with string-typed output: a YYYY-MM-DD date,
// or nil when the rule carries no fixed date.
func (r Resolver) ResolveString(rule string, anchors Anchors) (*string, error) {
	d, ok, err := r.Resolve(rule, anchors)
	if err != nil || !ok {
		return nil, err
	}
	s := Format(d)
	return &s, nil
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
