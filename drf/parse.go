package drf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beauremus/pacsys/pacsyserr"
)

// Request is a fully parsed device request: the resolved device/property,
// an optional field selector, an optional array range, an event, and an
// optional trailing backend-routing hint ("<-FTP").
type Request struct {
	Device Device
	Field  Field
	Range  Range
	Event  Event
	Handle string
}

// ParseRequest parses a device[.PROPERTY][range][.FIELD]@event[<-HANDLE]
// string into a Request. Grammar, applied left to right over the body
// remaining after the handle and event are split off:
//
//  1. Split off a trailing "<-HANDLE" backend-routing hint, if present.
//  2. Split off a trailing "@event" suffix, if present (an '@' occurring
//     anywhere from index 2 onward; the device's own property delimiter,
//     if '@', can only occur at index 1 and is therefore never mistaken
//     for it).
//  3. The device name runs up to the first '.' or '[' in what remains.
//     Its Property is inferred from the delimiter character at index 1,
//     then the name is normalized to use ':' as that delimiter.
//  4. A leading ".WORD" is consumed as an explicit property override if
//     WORD names a known Property (taking precedence over the delimiter);
//     a ".WORD" that only names a known Field is left for step 6.
//  5. A "[...]" array subscript is parsed and consumed if present.
//  6. A trailing ".FIELD" is consumed if present; STATUS properties never
//     carry a field, everything else defaults to SCALED when absent.
func ParseRequest(text string) (Request, error) {
	if text == "" {
		return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("empty request")}
	}

	rest := text
	handle := ""
	if hi := strings.LastIndex(rest, "<-"); hi >= 0 {
		handle = rest[hi+2:]
		rest = rest[:hi]
	}

	ev := DefaultEvent
	if at := indexEvent(rest); at >= 0 {
		ev2, err := parseEvent(rest[at+1:], text, at+1)
		if err != nil {
			return Request{}, err
		}
		ev = ev2
		rest = rest[:at]
	}

	if rest == "" {
		return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("empty device name")}
	}

	splitAt := len(rest)
	for i := 2; i < len(rest); i++ {
		if rest[i] == '.' || rest[i] == '[' {
			splitAt = i
			break
		}
	}
	namePart := rest[:splitAt]
	rest = rest[splitAt:]

	if len(namePart) < 2 {
		return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("device name %q too short to carry a delimiter", namePart)}
	}
	delim := namePart[1]
	prop, ok := delimiterProperty[delim]
	if !ok {
		return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 1, Cause: fmt.Errorf("unrecognized device delimiter %q", delim)}
	}
	name := namePart[:1] + ":" + namePart[2:]

	if strings.HasPrefix(rest, ".") {
		dot := strings.IndexAny(rest[1:], ".[")
		var word string
		if dot < 0 {
			word = rest[1:]
		} else {
			word = rest[1 : 1+dot]
		}
		if p, ok := ParseProperty(word); ok {
			prop = p
			if dot < 0 {
				rest = ""
			} else {
				rest = rest[1+dot:]
			}
		}
	}

	rng := NoRange
	if strings.HasPrefix(rest, "[") {
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx < 0 {
			return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("unmatched '[' in %q", rest)}
		}
		r, err := parseRange(rest[1:closeIdx], text, 0)
		if err != nil {
			return Request{}, err
		}
		rng = r
		rest = rest[closeIdx+1:]
	}

	fld := FieldNone
	if prop != PropertyStatus {
		fld = FieldScaled
	}
	if strings.HasPrefix(rest, ".") {
		if prop == PropertyStatus {
			return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("STATUS property cannot carry a field")}
		}
		word := rest[1:]
		f, ok := ParseField(word)
		if !ok {
			return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("unrecognized field %q", word)}
		}
		fld = f
		rest = ""
	}

	if rest != "" {
		return Request{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("unexpected trailing text %q", rest)}
	}

	return Request{
		Device: Device{Name: name, Property: prop},
		Field:  fld,
		Range:  rng,
		Event:  ev,
		Handle: handle,
	}, nil
}

// ParseDevice parses just the device.property portion, rejecting any
// range, event, or routing-hint suffix. An explicit field is accepted
// and is not part of the returned Device.
func ParseDevice(text string) (Device, error) {
	req, err := ParseRequest(text)
	if err != nil {
		return Device{}, err
	}
	if req.Range.Kind != RangeNone || req.Event.Kind != EventDefault || req.Handle != "" {
		return Device{}, &pacsyserr.DRFParseError{Text: text, Position: 0, Cause: fmt.Errorf("unexpected range/event/handle suffix in device-only string")}
	}
	return req.Device, nil
}

// indexEvent locates the '@' that introduces a trailing event spec, or -1
// if none is present. Index 1 is reserved for the device's own analog-alarm
// property delimiter and is never treated as an event separator.
func indexEvent(s string) int {
	for i := 2; i < len(s); i++ {
		if s[i] == '@' {
			return i
		}
	}
	return -1
}

// parseRange parses the text between '[' and ']'.
func parseRange(text string, fullText string, pos int) (Range, error) {
	if text == "" || text == ":" {
		return Range{Kind: RangeFull}, nil
	}
	if !strings.Contains(text, ":") {
		n, err := strconv.Atoi(text)
		if err != nil {
			return Range{}, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: fmt.Errorf("invalid range index %q: %w", text, err)}
		}
		return Range{Kind: RangeSingle, Start: intPtr(n)}, nil
	}

	parts := strings.SplitN(text, ":", 2)
	r := Range{Kind: RangeStd}
	if parts[0] != "" {
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			return Range{}, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: fmt.Errorf("invalid range start %q: %w", parts[0], err)}
		}
		r.Start = intPtr(n)
	}
	if parts[1] != "" {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return Range{}, &pacsyserr.DRFParseError{Text: fullText, Position: pos, Cause: fmt.Errorf("invalid range end %q: %w", parts[1], err)}
		}
		r.End = intPtr(n)
	}
	if r.Start == nil && r.End == nil {
		r.Kind = RangeFull
	}
	return r, nil
}
