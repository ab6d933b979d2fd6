// Package echo repeats after the user.
package echo

import (
	"context"

	"voiceassistant/internal/plugins/phrase"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Slug identifies the plugin.
const Slug = "echo"

var triggers = phrase.Set{"跟我说", "跟我念", "跟我读", "repeat after me", "say after me"}

type Plugin struct {
	logger *zap.Logger
}

func NewPlugin(logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{logger: logger.Named(Slug)}
}

func (p *Plugin) Slug() string { return Slug }

func (p *Plugin) IsValid(text string) bool { return triggers.Match(text) }

func (p *Plugin) Handle(ctx context.Context, text string, sess *plugin.Session) error {
	rest, _ := triggers.After(text)
	if rest == "" {
		return sess.SayCached(ctx, phrase.Pick(text, "要我说什么？", "What should I say?"))
	}
	return sess.Say(ctx, rest)
}
