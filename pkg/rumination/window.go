package rumination

import (
	"fmt"
	"strings"
	"time"
)

type WindowKind string

const (
	WindowHours    WindowKind = "hours"
	WindowDays     WindowKind = "days"
	WindowMessages WindowKind = "messages"
)

// Window selects the messages a summary covers: a trailing duration in hours
// or days, or the last Amount messages.
type Window struct {
	Kind   WindowKind
	Amount int
}

// DefaultWindow is the last two days.
var DefaultWindow = Window{Kind: WindowDays, Amount: 2}

// ParseWindow builds a window from user input. An empty kind selects
// DefaultWindow; a non-positive amount selects the kind's default.
func ParseWindow(kind string, amount int) (Window, error) {
	switch WindowKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "":
		if amount > 0 {
			return Window{Kind: WindowDays, Amount: amount}, nil
		}
		return DefaultWindow, nil
	case WindowHours:
		return Window{Kind: WindowHours, Amount: amount}.normalize(), nil
	case WindowDays:
		return Window{Kind: WindowDays, Amount: amount}.normalize(), nil
	case WindowMessages:
		return Window{Kind: WindowMessages, Amount: amount}.normalize(), nil
	default:
		return Window{}, fmt.Errorf("unknown window %q (want hours, days or messages)", kind)
	}
}

func (w Window) normalize() Window {
	if w.Amount > 0 {
		if w.Kind == "" {
			w.Kind = WindowDays
		}
		return w
	}
	switch w.Kind {
	case WindowHours:
		w.Amount = 6
	case WindowMessages:
		w.Amount = 100
	default:
		w = DefaultWindow
	}
	return w
}

// Label renders the window the way summaries describe their period.
func (w Window) Label() string {
	switch w.Kind {
	case WindowHours:
		return fmt.Sprintf("last %d hour(s)", w.Amount)
	case WindowMessages:
		return fmt.Sprintf("last %d messages", w.Amount)
	default:
		return fmt.Sprintf("last %d day(s)", w.Amount)
	}
}

// Duration is the trailing span of a time window, zero for a message window.
func (w Window) Duration() time.Duration {
	switch w.Kind {
	case WindowHours:
		return time.Duration(w.Amount) * time.Hour
	case WindowDays:
		return time.Duration(w.Amount) * 24 * time.Hour
	default:
		return 0
	}
}
