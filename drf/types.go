// Package drf implements the Device Request Format grammar: parsing,
// canonicalization, and event classification for device.property.range.field@event
// strings, per pacsys.drf3 in the original Python implementation.
package drf

import "strings"

// Property is the device attribute a request addresses.
type Property int

const (
	// PropertyUnknown is the zero value; never produced by a successful parse.
	PropertyUnknown Property = iota
	PropertyReading
	PropertySetting
	PropertyStatus
	PropertyControl
	PropertyAnalogAlarm
	PropertyDigitalAlarm
	PropertyDescription
)

// delimiterProperty maps the single-character device delimiter to the
// property it hints, per spec.md §3.
var delimiterProperty = map[byte]Property{
	':': PropertyReading,
	'_': PropertySetting,
	'|': PropertyStatus,
	'&': PropertyControl,
	'@': PropertyAnalogAlarm,
	'$': PropertyDigitalAlarm,
	'~': PropertyDescription,
}

// propertyDelimiter is the inverse of delimiterProperty, used when
// emitting qualified-form strings.
var propertyDelimiter = map[Property]byte{
	PropertyReading:      ':',
	PropertySetting:      '_',
	PropertyStatus:       '|',
	PropertyControl:      '&',
	PropertyAnalogAlarm:  '@',
	PropertyDigitalAlarm: '$',
	PropertyDescription:  '~',
}

var propertyNames = map[Property]string{
	PropertyReading:      "READING",
	PropertySetting:      "SETTING",
	PropertyStatus:       "STATUS",
	PropertyControl:      "CONTROL",
	PropertyAnalogAlarm:  "ANALOG_ALARM",
	PropertyDigitalAlarm: "DIGITAL_ALARM",
	PropertyDescription:  "DESCRIPTION",
}

var nameProperty = func() map[string]Property {
	m := make(map[string]Property, len(propertyNames))
	for p, n := range propertyNames {
		m[n] = p
	}
	return m
}()

func (p Property) String() string {
	if n, ok := propertyNames[p]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseProperty looks up a property by its canonical (case-insensitive)
// name. ok is false for unrecognized names.
func ParseProperty(name string) (Property, bool) {
	p, ok := nameProperty[strings.ToUpper(name)]
	return p, ok
}

// Field selects the representation of a device's value.
type Field int

const (
	FieldNone Field = iota
	FieldScaled
	FieldRaw
	FieldPrimary
	FieldAll
)

var fieldNames = map[Field]string{
	FieldScaled:  "SCALED",
	FieldRaw:     "RAW",
	FieldPrimary: "PRIMARY",
	FieldAll:     "ALL",
}

var nameField = func() map[string]Field {
	m := make(map[string]Field, len(fieldNames))
	for f, n := range fieldNames {
		m[n] = f
	}
	return m
}()

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return ""
}

// ParseField looks up a field by its canonical (case-insensitive) name.
func ParseField(name string) (Field, bool) {
	f, ok := nameField[strings.ToUpper(name)]
	return f, ok
}

// RangeKind classifies an array range subscript.
type RangeKind int

const (
	// RangeNone means no "[...]" subscript was present.
	RangeNone RangeKind = iota
	// RangeFull is "[]" or "[:]".
	RangeFull
	// RangeSingle is "[n]".
	RangeSingle
	// RangeStd is "[a:b]", "[a:]", or "[:b]" with at least one bound.
	RangeStd
)

// Range is a parsed array subscript. Start/End are nil when the
// corresponding bound is absent (open-ended).
type Range struct {
	Kind  RangeKind
	Start *int
	End   *int
}

// NoRange is the zero Range, equivalent to no subscript present.
var NoRange = Range{Kind: RangeNone}

func intPtr(v int) *int { return &v }

// Device identifies a named instrument and the property the delimiter (or
// explicit .PROPERTY suffix) selects.
type Device struct {
	Name     string // canonical name, e.g. "N:I2B1RI"
	Property Property
}

// CanonicalString renders the device using its ':'-reading-style
// delimiter form, e.g. "N:I2B1RI".
func (d Device) CanonicalString() string {
	return d.Name
}
