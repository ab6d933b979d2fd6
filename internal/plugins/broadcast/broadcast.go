// Package broadcast forwards spoken messages through the background relay.
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"voiceassistant/internal/plugins/phrase"
	"voiceassistant/internal/relay"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Slug identifies the plugin.
const Slug = "broadcast"

var triggers = phrase.Set{"发送消息", "发消息", "广播", "send message", "send a message", "broadcast"}

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
	message, _ := triggers.After(text)
	if message == "" {
		return sess.SayCached(ctx, phrase.Pick(text, "要发送什么消息？", "What message should I send?"))
	}

	if sess.Messenger == nil {
		return p.unavailable(ctx, text, sess)
	}

	err := sess.Messenger.Post(ctx, message)
	if errors.Is(err, relay.ErrNotConnected) {
		return p.unavailable(ctx, text, sess)
	}
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}

	p.logger.Info("Message posted", zap.String("text", message))
	return sess.SayCached(ctx, phrase.Pick(text, "消息已发送。", "Message sent."))
}

func (p *Plugin) unavailable(ctx context.Context, text string, sess *plugin.Session) error {
	p.logger.Warn("Relay unavailable, message not sent")
	return sess.SayCached(ctx, phrase.Pick(text, "消息通道不可用。", "The message relay is not available."))
}
