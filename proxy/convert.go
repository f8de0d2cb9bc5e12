package proxy

import (
	"github.com/beauremus/pacsys/drf"
	"github.com/beauremus/pacsys/proxy/pacsyspb"
	"github.com/beauremus/pacsys/value"
)

func valueToPB(v value.Value) *pacsyspb.Value {
	pb := &pacsyspb.Value{Kind: int32(v.Kind())}
	switch v.Kind() {
	case value.Scalar:
		pb.Scalar, _ = v.AsScalar()
	case value.ScalarArray:
		pb.ScalarArray, _ = v.AsScalarArray()
	case value.Text:
		pb.Text, _ = v.AsText()
	case value.Digital:
		pb.Digital, _ = v.AsDigital()
	}
	return pb
}

func pbToValue(pb *pacsyspb.Value) value.Value {
	if pb == nil {
		return value.NewScalar(0)
	}
	switch pb.Kind {
	case pacsyspb.ValueScalarArray:
		return value.NewScalarArray(pb.ScalarArray)
	case pacsyspb.ValueText:
		return value.NewText(pb.Text)
	case pacsyspb.ValueDigital:
		return value.NewDigital(pb.Digital)
	default:
		return value.NewScalar(pb.Scalar)
	}
}

func readingToPB(r value.Reading) *pacsyspb.Reading {
	pb := &pacsyspb.Reading{
		Drf:               r.Drf,
		Facility:          int32(r.Facility),
		ErrorCode:         int32(r.ErrorCode),
		Message:           r.Message,
		TimestampUnixNano: r.Timestamp.UnixNano(),
	}
	if r.Value != nil {
		pb.Value = valueToPB(*r.Value)
	}
	return pb
}

// allOneShot reports whether every drf's event classifies as one-shot
// (DefaultEvent, ImmediateEvent, NeverEvent, or Periodic mode 'Q').
// A drf that fails to parse is conservatively treated as not one-shot
// so the caller routes it to a live subscription, where the backend
// itself will surface the parse failure.
func allOneShot(drfs []string) bool {
	for _, d := range drfs {
		req, err := drf.ParseRequest(d)
		if err != nil || !req.Event.IsOneShot() {
			return false
		}
	}
	return true
}
