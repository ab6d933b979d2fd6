// Package sun answers sunrise and sunset questions.
package sun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceassistant/internal/dayphase"
	"voiceassistant/internal/plugins/phrase"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Slug identifies the plugin.
const Slug = "sun"

var (
	risePhrases = phrase.Set{"日出", "天亮", "sunrise", "sun rise", "sun come up"}
	setPhrases  = phrase.Set{"日落", "天黑", "sunset", "sun set", "get dark"}
	sunPhrases  = phrase.Set{"太阳", "the sun"}
)

// Plugin reads today's sun times from a dayphase calculator.
type Plugin struct {
	calc   *dayphase.Calculator
	logger *zap.Logger
}

// NewPlugin creates the plugin.
func NewPlugin(calc *dayphase.Calculator, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{calc: calc, logger: logger.Named(Slug)}
}

func (p *Plugin) Slug() string { return Slug }

func (p *Plugin) IsValid(text string) bool {
	return risePhrases.Match(text) || setPhrases.Match(text) || sunPhrases.Match(text)
}

func (p *Plugin) Handle(ctx context.Context, text string, sess *plugin.Session) error {
	chinese := phrase.Chinese(text)

	times, err := p.calc.Today()
	if errors.Is(err, dayphase.ErrNoSunriseSunset) {
		return sess.SayCached(ctx, phrase.Pick(text, "今天这里没有日出日落。", "The sun doesn't rise or set here today."))
	}
	if err != nil {
		return fmt.Errorf("sun times: %w", err)
	}

	rise, set := risePhrases.Match(text), setPhrases.Match(text)
	if !rise && !set {
		rise, set = true, true
	}
	return sess.Say(ctx, Describe(times, rise, set, chinese))
}

// Describe renders the requested sun times as one sentence.
func Describe(times dayphase.SunTimes, rise, set, chinese bool) string {
	if chinese {
		switch {
		case rise && set:
			return fmt.Sprintf("今天日出时间是%s，日落时间是%s。", clockZH(times.Sunrise), clockZH(times.Sunset))
		case rise:
			return fmt.Sprintf("今天日出时间是%s。", clockZH(times.Sunrise))
		default:
			return fmt.Sprintf("今天日落时间是%s。", clockZH(times.Sunset))
		}
	}
	switch {
	case rise && set:
		return fmt.Sprintf("Sunrise today is at %s and sunset is at %s.", clockEN(times.Sunrise), clockEN(times.Sunset))
	case rise:
		return fmt.Sprintf("Sunrise today is at %s.", clockEN(times.Sunrise))
	default:
		return fmt.Sprintf("Sunset today is at %s.", clockEN(times.Sunset))
	}
}

func clockZH(t time.Time) string {
	return fmt.Sprintf("%d点%02d分", t.Hour(), t.Minute())
}

func clockEN(t time.Time) string {
	return t.Format("3:04 PM")
}
