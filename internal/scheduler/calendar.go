package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/scmhub/calendar"
)

var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".MC": "xmad",
	".SW": "xswx",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".KS": "xkrx",
	".SS": "xshg",
	".SZ": "xshe",
}

// MICForSymbol maps a ticker's exchange suffix to its market identifier code.
// Unsuffixed tickers are treated as NYSE listings.
func MICForSymbol(symbol string) string {
	if i := strings.LastIndex(symbol, "."); i > 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[i:])]; ok {
			return mic
		}
	}
	return "xnys"
}

// CalendarGate opens the refresh gate only during exchange trading hours.
type CalendarGate struct {
	mu        sync.Mutex
	calendars map[string]*calendar.Calendar
}

// NewCalendarGate creates a gate backed by exchange calendars.
func NewCalendarGate() *CalendarGate {
	return &CalendarGate{calendars: make(map[string]*calendar.Calendar)}
}

// IsOpen reports whether the symbol's exchange is trading at t.
func (g *CalendarGate) IsOpen(symbol string, t time.Time) bool {
	cal := g.calendar(MICForSymbol(symbol))
	if cal == nil {
		return fallbackOpen(t)
	}
	return cal.IsOpen(t)
}

func (g *CalendarGate) calendar(mic string) *calendar.Calendar {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cal, ok := g.calendars[mic]; ok {
		return cal
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	g.calendars[mic] = cal
	return cal
}

// fallbackOpen approximates NYSE hours: weekdays 09:30 to 16:00 New York time.
func fallbackOpen(t time.Time) bool {
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		t = t.In(loc)
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
