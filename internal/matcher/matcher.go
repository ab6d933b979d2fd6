// Package matcher selects the plugin that handles an utterance.
//
// Every loaded plugin is asked whether it claims the text. The first claimant
// in load order wins; overlapping triggers are resolved by that order alone,
// never by how specific a trigger is.
package matcher

import (
	"strings"

	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Outcome is the kind of match found for an utterance.
type Outcome int

const (
	// OutcomeNone means no plugin claimed the text.
	OutcomeNone Outcome = iota
	// OutcomeMatched means exactly one plugin claimed the text.
	OutcomeMatched
	// OutcomeAmbiguous means several plugins claimed the text and the
	// first one in load order was selected.
	OutcomeAmbiguous
)

// String returns a lowercase name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeMatched:
		return "matched"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Result is the outcome of matching one utterance.
type Result struct {
	Outcome Outcome

	// Selected is the plugin to dispatch to. Nil for OutcomeNone.
	Selected plugin.Plugin

	// Candidates holds every claimant in load order.
	Candidates []plugin.Plugin
}

// Found reports whether a plugin was selected.
func (r Result) Found() bool {
	return r.Selected != nil
}

// CandidateSlugs returns the slugs of all claimants.
func (r Result) CandidateSlugs() []string {
	slugs := make([]string, len(r.Candidates))
	for i, p := range r.Candidates {
		slugs[i] = p.Slug()
	}
	return slugs
}

// Match evaluates every plugin's predicate against text, in order.
// Empty or whitespace-only text matches nothing and no predicate is called.
func Match(text string, plugins []plugin.Plugin) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Outcome: OutcomeNone}
	}

	var candidates []plugin.Plugin
	for _, p := range plugins {
		if claims(p, text) {
			candidates = append(candidates, p)
		}
	}

	switch len(candidates) {
	case 0:
		return Result{Outcome: OutcomeNone}
	case 1:
		return Result{Outcome: OutcomeMatched, Selected: candidates[0], Candidates: candidates}
	default:
		return Result{Outcome: OutcomeAmbiguous, Selected: candidates[0], Candidates: candidates}
	}
}

// claims calls the predicate; a predicate that panics does not claim.
func claims(p plugin.Plugin, text string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.IsValid(text)
}

// Matcher binds a loaded plugin list to a logger.
type Matcher struct {
	plugins []plugin.Plugin
	logger  *zap.Logger
}

// New creates a Matcher over plugins, which must already be in load order.
func New(plugins []plugin.Plugin, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		plugins: plugins,
		logger:  logger.Named("matcher"),
	}
}

// Plugins returns the plugins in match order.
func (m *Matcher) Plugins() []plugin.Plugin {
	return m.plugins
}

// Match selects the plugin for text.
func (m *Matcher) Match(text string) Result {
	result := Match(text, m.plugins)
	if result.Outcome == OutcomeAmbiguous {
		m.logger.Debug("Several plugins claimed utterance, using first",
			zap.String("text", text),
			zap.String("selected", result.Selected.Slug()),
			zap.Strings("candidates", result.CandidateSlugs()))
	}
	return result
}
