package datapool

import (
	"github.com/beauremus/pacsys/value"
)

// wireMessage is the JSON envelope exchanged with the data-pool
// upstream over each WebSocket connection. Request messages carry an
// ID the upstream echoes back on its reply so a pooled round-robin
// connection can demultiplex concurrent in-flight calls; subscription
// messages instead key off SubID, which stays stable for the whole
// subscription's lifetime.
type wireMessage struct {
	Type     string      `json:"type"`
	ID       string      `json:"id,omitempty"`
	SubID    string      `json:"sub_id,omitempty"`
	Drfs     []string    `json:"drfs,omitempty"`
	Settings []wireWrite `json:"settings,omitempty"`
	Readings []wireValue `json:"readings,omitempty"`
	Results  []wireWrite `json:"results,omitempty"`
	Token    string      `json:"token,omitempty"`
	Role     string      `json:"role,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type wireWrite struct {
	Drf       string    `json:"drf"`
	Value     wireValue `json:"value,omitempty"`
	Facility  int       `json:"facility,omitempty"`
	ErrorCode int       `json:"error_code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// wireValue is the JSON-serializable shape of value.Value / value.Reading.
type wireValue struct {
	Drf         string    `json:"drf,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Scalar      float64   `json:"scalar,omitempty"`
	ScalarArray []float64 `json:"scalar_array,omitempty"`
	Text        string    `json:"text,omitempty"`
	Digital     uint32    `json:"digital,omitempty"`
	Facility    int       `json:"facility,omitempty"`
	ErrorCode   int       `json:"error_code,omitempty"`
	Message     string    `json:"message,omitempty"`
	TimestampNs int64     `json:"timestamp_ns,omitempty"`
}

func valueToWire(v value.Value) wireValue {
	w := wireValue{Kind: v.Kind().String()}
	switch v.Kind() {
	case value.Scalar:
		w.Scalar, _ = v.AsScalar()
	case value.ScalarArray:
		w.ScalarArray, _ = v.AsScalarArray()
	case value.Text:
		w.Text, _ = v.AsText()
	case value.Digital:
		w.Digital, _ = v.AsDigital()
	}
	return w
}

func wireToValue(w wireValue) value.Value {
	switch w.Kind {
	case value.ScalarArray.String():
		return value.NewScalarArray(w.ScalarArray)
	case value.Text.String():
		return value.NewText(w.Text)
	case value.Digital.String():
		return value.NewDigital(w.Digital)
	default:
		return value.NewScalar(w.Scalar)
	}
}

func readingToWire(drf string, r value.Reading) wireValue {
	w := wireValue{Drf: drf, Facility: r.Facility, ErrorCode: int(r.ErrorCode), Message: r.Message, TimestampNs: r.Timestamp.UnixNano()}
	if r.Value != nil {
		v := valueToWire(*r.Value)
		w.Kind, w.Scalar, w.ScalarArray, w.Text, w.Digital = v.Kind, v.Scalar, v.ScalarArray, v.Text, v.Digital
	}
	return w
}

func wireToReading(w wireValue) value.Reading {
	r := value.Reading{
		Drf:       w.Drf,
		Facility:  w.Facility,
		ErrorCode: int8(w.ErrorCode),
		Message:   w.Message,
	}
	if w.Kind != "" {
		v := wireToValue(w)
		r.Value = &v
		r.ValueType = v.Kind()
	}
	return r
}
