// Package dayphase computes sun times and the part of the day for the
// configured location.
package dayphase

import (
	"errors"
	"sync"
	"time"

	"voiceassistant/internal/clock"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// ErrNoSunriseSunset is returned on days when the sun never rises or never
// sets at the location.
var ErrNoSunriseSunset = errors.New("no sunrise or sunset on this day")

// SunEvent represents the simplified sun event state
type SunEvent string

const (
	SunEventMorning SunEvent = "morning"
	SunEventDay     SunEvent = "day"
	SunEventSunset  SunEvent = "sunset"
	SunEventDusk    SunEvent = "dusk"
	SunEventNight   SunEvent = "night"
)

// SunTimes are the sun events of one day, in the calculator's timezone.
type SunTimes struct {
	Dawn        time.Time
	Sunrise     time.Time
	SunriseEnd  time.Time
	SunsetStart time.Time
	Sunset      time.Time
	Dusk        time.Time
}

// DayLength is the time between sunrise and sunset.
func (s SunTimes) DayLength() time.Duration {
	return s.Sunset.Sub(s.Sunrise)
}

// EventAt maps t to the sun event it falls in.
func (s SunTimes) EventAt(t time.Time) SunEvent {
	switch {
	case t.Before(s.Dawn):
		return SunEventNight
	case t.Before(s.SunriseEnd):
		return SunEventMorning // dawn and sunrise
	case t.Before(s.SunsetStart):
		return SunEventDay
	case t.Before(s.Sunset):
		return SunEventSunset // golden hour
	case t.Before(s.Dusk):
		return SunEventDusk // civil twilight
	default:
		return SunEventNight
	}
}

// Calculator computes sun times for a fixed location.
type Calculator struct {
	latitude  float64
	longitude float64
	location  *time.Location
	clock     clock.Clock
	logger    *zap.Logger

	mu       sync.Mutex
	cached   SunTimes
	cachedOn string
}

// NewCalculator creates a calculator. Times are reported in loc.
func NewCalculator(latitude, longitude float64, loc *time.Location, clk clock.Clock, logger *zap.Logger) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		latitude:  latitude,
		longitude: longitude,
		location:  loc,
		clock:     clk,
		logger:    logger,
	}
}

// Now returns the current time in the calculator's timezone.
func (c *Calculator) Now() time.Time {
	return c.clock.Now().In(c.location)
}

// TimesOn calculates the sun times for the calendar day of date.
func (c *Calculator) TimesOn(date time.Time) (SunTimes, error) {
	date = date.In(c.location)
	rise, set := sunrise.SunriseSunset(
		c.latitude, c.longitude,
		date.Year(), date.Month(), date.Day(),
	)
	if rise.IsZero() || set.IsZero() {
		return SunTimes{}, ErrNoSunriseSunset
	}

	rise = rise.In(c.location)
	set = set.In(c.location)

	// Civil twilight is about 30 minutes either side, golden hour about an
	// hour before sunset.
	return SunTimes{
		Dawn:        rise.Add(-30 * time.Minute),
		Sunrise:     rise,
		SunriseEnd:  rise.Add(30 * time.Minute),
		SunsetStart: set.Add(-60 * time.Minute),
		Sunset:      set,
		Dusk:        set.Add(30 * time.Minute),
	}, nil
}

// Today returns today's sun times, recalculating once per day.
func (c *Calculator) Today() (SunTimes, error) {
	now := c.Now()
	day := now.Format("2006-01-02")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedOn == day {
		return c.cached, nil
	}

	times, err := c.TimesOn(now)
	if err != nil {
		return SunTimes{}, err
	}
	c.cached = times
	c.cachedOn = day

	c.logger.Info("Sun times updated",
		zap.Time("sunrise", times.Sunrise),
		zap.Time("sunset", times.Sunset),
		zap.Time("dawn", times.Dawn),
		zap.Time("dusk", times.Dusk))
	return times, nil
}

// SunEvent returns the current simplified sun event state.
func (c *Calculator) SunEvent() (SunEvent, error) {
	times, err := c.Today()
	if err != nil {
		return "", err
	}
	return times.EventAt(c.Now()), nil
}
