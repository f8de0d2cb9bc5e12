package drf

import (
	"strconv"
	"strings"
)

// ToCanonical renders a Request to its canonical string form:
// "NAME.PROPERTY[range][.field]@event<-handle". The property is always
// spelled out explicitly; the field is included only when it differs
// from the property's default (SCALED, or none for STATUS); the range
// is included only when the request carried one, and a full range always
// renders as "[:]". Re-parsing the result yields an equivalent Request.
func ToCanonical(req Request) string {
	var sb strings.Builder
	sb.WriteString(req.Device.Name)
	sb.WriteByte('.')
	sb.WriteString(req.Device.Property.String())
	writeRangeFieldEventHandle(&sb, req)
	return sb.String()
}

// ToQualified renders a Request using its delimiter-hint form instead of
// an explicit ".PROPERTY" suffix: "NAME-with-delimiter[range][.field]@event<-handle".
func ToQualified(req Request) string {
	var sb strings.Builder
	sb.WriteString(qualifiedDeviceString(req.Device.Name, req.Device.Property))
	writeRangeFieldEventHandle(&sb, req)
	return sb.String()
}

func writeRangeFieldEventHandle(sb *strings.Builder, req Request) {
	if req.Range.Kind != RangeNone {
		sb.WriteString(rangeString(req.Range))
	}
	if defaultField(req.Device.Property) != req.Field {
		sb.WriteByte('.')
		sb.WriteString(req.Field.String())
	}
	if req.Event.Kind != EventDefault {
		sb.WriteByte('@')
		sb.WriteString(req.Event.Raw)
	}
	if req.Handle != "" {
		sb.WriteString("<-")
		sb.WriteString(req.Handle)
	}
}

// defaultField is the field implied by a property when none is given
// explicitly: absent (FieldNone) for STATUS, SCALED otherwise.
func defaultField(p Property) Field {
	if p == PropertyStatus {
		return FieldNone
	}
	return FieldScaled
}

// GetQualifiedDevice renders a canonical device name (":"-delimited) under
// the delimiter that corresponds to the given property.
func GetQualifiedDevice(name string, property Property) (string, error) {
	if len(name) < 2 {
		return "", &qualifyError{name: name}
	}
	return qualifiedDeviceString(name, property), nil
}

type qualifyError struct{ name string }

func (e *qualifyError) Error() string { return "device name too short to qualify: " + e.name }

// qualifiedDeviceString substitutes the delimiter at index 1 of a
// ":"-normalized device name with the one matching property.
func qualifiedDeviceString(name string, property Property) string {
	delim, ok := propertyDelimiter[property]
	if !ok || len(name) < 2 {
		return name
	}
	return name[:1] + string(delim) + name[2:]
}

func rangeString(r Range) string {
	switch r.Kind {
	case RangeFull:
		return "[:]"
	case RangeSingle:
		if r.Start == nil {
			return "[:]"
		}
		return "[" + strconv.Itoa(*r.Start) + "]"
	case RangeStd:
		start, end := "", ""
		if r.Start != nil {
			start = strconv.Itoa(*r.Start)
		}
		if r.End != nil {
			end = strconv.Itoa(*r.End)
		}
		return "[" + start + ":" + end + "]"
	default:
		return ""
	}
}

// EnsureImmediateEvent returns text unchanged if it already carries an
// explicit event; otherwise it splices "@I" immediately before any
// trailing "<-HANDLE" routing hint (or at the end, if there is none) so
// the request becomes a one-shot immediate read/write instead of relying
// on a backend-specific default. The rest of the text is left untouched.
func EnsureImmediateEvent(text string) (string, error) {
	req, err := ParseRequest(text)
	if err != nil {
		return "", err
	}
	if req.Event.Kind != EventDefault {
		return text, nil
	}
	if req.Handle == "" {
		return text + "@I", nil
	}
	hi := strings.LastIndex(text, "<-")
	return text[:hi] + "@I" + text[hi:], nil
}
