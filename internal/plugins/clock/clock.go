// Package clock answers questions about the current time and date.
package clock

import (
	"context"
	"fmt"
	"time"

	clk "voiceassistant/internal/clock"
	"voiceassistant/internal/plugins/phrase"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// Slug identifies the plugin.
const Slug = "clock"

var (
	timePhrases = phrase.Set{"几点", "时间", "what time", "the time"}
	datePhrases = phrase.Set{"几号", "日期", "星期几", "周几", "礼拜几", "what date", "what day", "the date", "today's date"}
)

var weekdaysZH = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// Plugin tells the time in a fixed timezone.
type Plugin struct {
	clock    clk.Clock
	location *time.Location
	logger   *zap.Logger
}

// NewPlugin creates the plugin. A nil location means local time.
func NewPlugin(c clk.Clock, location *time.Location, logger *zap.Logger) *Plugin {
	if c == nil {
		c = clk.NewRealClock()
	}
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{clock: c, location: location, logger: logger.Named(Slug)}
}

func (p *Plugin) Slug() string { return Slug }

func (p *Plugin) IsValid(text string) bool {
	return timePhrases.Match(text) || datePhrases.Match(text)
}

func (p *Plugin) Handle(ctx context.Context, text string, sess *plugin.Session) error {
	now := p.clock.Now().In(p.location)

	var reply string
	if datePhrases.Match(text) {
		reply = FormatDate(now, phrase.Chinese(text))
	} else {
		reply = FormatTime(now, phrase.Chinese(text))
	}

	p.logger.Debug("Answering", zap.String("reply", reply))
	return sess.Say(ctx, reply)
}

// FormatTime renders t as a spoken time of day.
func FormatTime(t time.Time, chinese bool) string {
	if chinese {
		if t.Minute() == 0 {
			return fmt.Sprintf("现在是%s%d点整。", periodZH(t.Hour()), hour12(t.Hour()))
		}
		return fmt.Sprintf("现在是%s%d点%d分。", periodZH(t.Hour()), hour12(t.Hour()), t.Minute())
	}
	return "It is " + t.Format("3:04 PM") + "."
}

// FormatDate renders t as a spoken date with the weekday.
func FormatDate(t time.Time, chinese bool) string {
	if chinese {
		return fmt.Sprintf("今天是%d年%d月%d日，星期%s。", t.Year(), int(t.Month()), t.Day(), weekdaysZH[t.Weekday()])
	}
	return "Today is " + t.Format("Monday, January 2, 2006") + "."
}

func hour12(h int) int {
	if h%12 == 0 {
		return 12
	}
	return h % 12
}

func periodZH(h int) string {
	switch {
	case h < 6:
		return "凌晨"
	case h < 12:
		return "上午"
	case h < 13:
		return "中午"
	case h < 18:
		return "下午"
	default:
		return "晚上"
	}
}
