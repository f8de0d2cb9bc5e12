package drf

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beauremus/pacsys/pacsyserr"
)

// EventKind is the closed set of event variants a DRF request can carry.
type EventKind int

const (
	EventDefault EventKind = iota
	EventImmediate
	EventNever
	EventPeriodic
	EventClock
	EventState
)

func (k EventKind) String() string {
	switch k {
	case EventDefault:
		return "Default"
	case EventImmediate:
		return "Immediate"
	case EventNever:
		return "Never"
	case EventPeriodic:
		return "Periodic"
	case EventClock:
		return "Clock"
	case EventState:
		return "State"
	default:
		return "Unknown"
	}
}

// Event is the timing/triggering modifier a request carries. Raw holds the
// exact text that followed '@' in the original string (sans any trailing
// "<-HANDLE" routing hint) so canonical/qualified re-emission is lossless.
// Mode and Millis are populated only for EventPeriodic.
type Event struct {
	Kind   EventKind
	Raw    string
	Mode   byte // 'P' (continuous) or 'Q' (one-shot-per-period), periodic only
	Millis int  // periodic duration in integer milliseconds, periodic only
}

// DefaultEvent is the absent-event zero value.
var DefaultEvent = Event{Kind: EventDefault}

// IsOneShot reports whether the event yields at most one reading:
// Default, Immediate, Never, and Periodic in mode 'Q'.
func (e Event) IsOneShot() bool {
	switch e.Kind {
	case EventDefault, EventImmediate, EventNever:
		return true
	case EventPeriodic:
		return e.Mode == 'Q'
	default:
		return false
	}
}

// parseEvent parses the text immediately following '@' (sans routing hint).
// An empty string is a parse error — "@" with nothing after is forbidden.
func parseEvent(raw string, fullText string, pos int) (Event, error) {
	if raw == "" {
		return Event{}, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: fmt.Errorf("empty event after '@'")}
	}
	first := raw[0]
	switch {
	case first == 'i' || first == 'I':
		return Event{Kind: EventImmediate, Raw: raw}, nil
	case first == 'n' || first == 'N':
		return Event{Kind: EventNever, Raw: raw}, nil
	case first == 'p' || first == 'P':
		ms, err := parseTimeFreqFromSpec(raw, fullText, pos)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventPeriodic, Raw: raw, Mode: 'P', Millis: ms}, nil
	case first == 'q' || first == 'Q':
		ms, err := parseTimeFreqFromSpec(raw, fullText, pos)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventPeriodic, Raw: raw, Mode: 'Q', Millis: ms}, nil
	case first == 'e' || first == 'E':
		return Event{Kind: EventClock, Raw: raw}, nil
	case first == 's' || first == 'S':
		return Event{Kind: EventState, Raw: raw}, nil
	default:
		return Event{}, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: fmt.Errorf("unrecognized event prefix %q", first)}
	}
}

// parseTimeFreqFromSpec extracts the duration token from a periodic event
// spec of the form "p,<dur>" or "q,<dur>" and converts it to milliseconds.
func parseTimeFreqFromSpec(raw string, fullText string, pos int) (int, error) {
	_, dur, found := strings.Cut(raw, ",")
	if !found {
		// No duration given (bare "@p"); treat as zero.
		return 0, nil
	}
	ms, err := parseTimeFreq(dur)
	if err != nil {
		return 0, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: err}
	}
	return ms, nil
}

// parseTimeFreq converts a periodic duration token (mantissa + optional
// unit suffix) to integer milliseconds, rounding half-up from double
// arithmetic. Units: none/M=ms, U=µs, S=s, H=Hz, K=kHz. Zero is always zero.
func parseTimeFreq(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	last := raw[len(raw)-1]
	var unit byte
	mantissaStr := raw
	switch last {
	case 'M', 'm', 'U', 'u', 'S', 's', 'H', 'h', 'K', 'k':
		unit = upper(last)
		mantissaStr = raw[:len(raw)-1]
	default:
		unit = 'M'
	}

	mantissa, err := strconv.ParseFloat(mantissaStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid periodic duration %q: %w", raw, err)
	}
	if mantissa == 0 {
		return 0, nil
	}

	var ms float64
	switch unit {
	case 'M':
		ms = mantissa
	case 'U':
		ms = mantissa / 1000.0
	case 'S':
		ms = mantissa * 1000.0
	case 'H':
		ms = 1000.0 / mantissa
	case 'K':
		ms = 1.0 / mantissa
	default:
		ms = mantissa
	}
	return roundHalfUp(ms), nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
