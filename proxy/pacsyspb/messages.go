// Package pacsyspb holds the wire messages and gRPC service boilerplate
// for the supervised proxy's Pacsys service. Normally this package
// would be generated by protoc-gen-go / protoc-gen-go-grpc from
// pacsys.proto; it is hand-written here field-for-field against the
// same IDL, using protowire directly rather than the full
// proto.Message/ProtoReflect machinery a real protoc run would emit.
package pacsyspb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Value mirrors value.Value as a wire message: exactly one of the
// scalar/array/text/digital fields is meaningful, selected by Kind.
type Value struct {
	Kind        int32
	Scalar      float64
	ScalarArray []float64
	Text        string
	Digital     uint32
}

const (
	ValueScalar      int32 = 0
	ValueScalarArray int32 = 1
	ValueText        int32 = 2
	ValueDigital     int32 = 3
)

func (v *Value) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Kind))
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, protowire.EncodeDouble(v.Scalar))
	for _, d := range v.ScalarArray {
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, protowire.EncodeDouble(d))
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, v.Text)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Digital))
	return b, nil
}

func (v *Value) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("pacsyspb: bad Value tag")
		}
		data = data[n:]
		switch num {
		case 1:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Value.kind")
			}
			v.Kind = int32(val)
			data = data[n:]
		case 2:
			val, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Value.scalar")
			}
			v.Scalar = protowire.DecodeDouble(val)
			data = data[n:]
		case 3:
			val, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Value.scalar_array")
			}
			v.ScalarArray = append(v.ScalarArray, protowire.DecodeDouble(val))
			data = data[n:]
		case 4:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Value.text")
			}
			v.Text = s
			data = data[n:]
		case 5:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Value.digital")
			}
			v.Digital = uint32(val)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: cannot skip unknown Value field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}

// Reading mirrors value.Reading on the wire.
type Reading struct {
	Drf               string
	Value             *Value
	Facility          int32
	ErrorCode         int32
	Message           string
	TimestampUnixNano int64
}

func (r *Reading) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.Drf)
	if r.Value != nil {
		sub, err := r.Value.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.Facility)))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.ErrorCode)))
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendString(b, r.Message)
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.TimestampUnixNano))
	return b, nil
}

func (r *Reading) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("pacsyspb: bad Reading tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.drf")
			}
			r.Drf = s
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.value")
			}
			r.Value = &Value{}
			if err := r.Value.Unmarshal(sub); err != nil {
				return err
			}
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.facility")
			}
			r.Facility = int32(val)
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.error_code")
			}
			r.ErrorCode = int32(val)
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.message")
			}
			r.Message = s
			data = data[n:]
		case num == 6 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: bad Reading.timestamp_unix_nano")
			}
			r.TimestampUnixNano = int64(val)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("pacsyspb: cannot skip unknown Reading field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}

// WriteResult mirrors value.WriteResult on the wire.
type WriteResult struct {
	Drf       string
	Facility  int32
	ErrorCode int32
	Message   string
}

func (w *WriteResult) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, w.Drf)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(w.Facility)))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(w.ErrorCode)))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, w.Message)
	return b, nil
}

// Setting pairs a drf with the value to write.
type Setting struct {
	Drf   string
	Value *Value
}

// ReadRequest/ReadResponse, SetRequest/SetResponse, AlarmsRequest/
// AlarmsResponse, and SubscribeRequest are the four RPC payloads.
// Their Marshal methods are intentionally minimal — they exist so the
// audit package's binary sink can serialize the original request
// object. The proxy handlers read their request fields from these
// same structs.

type ReadRequest struct {
	Drfs      []string
	TimeoutMs int64
}

func (r *ReadRequest) Marshal() ([]byte, error) {
	var b []byte
	for _, d := range r.Drfs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, d)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.TimeoutMs))
	return b, nil
}

type ReadResponse struct {
	Readings []*Reading
}

func (r *ReadResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, reading := range r.Readings {
		sub, err := reading.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

type SetRequest struct {
	Settings  []*Setting
	TimeoutMs int64
}

func (r *SetRequest) Marshal() ([]byte, error) {
	var b []byte
	for _, s := range r.Settings {
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, s.Drf)
		if s.Value != nil {
			vb, err := s.Value.Marshal()
			if err != nil {
				return nil, err
			}
			sub = protowire.AppendTag(sub, 2, protowire.BytesType)
			sub = protowire.AppendBytes(sub, vb)
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.TimeoutMs))
	return b, nil
}

type SetResponse struct {
	Results []*WriteResult
}

func (r *SetResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, res := range r.Results {
		sub, err := res.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

type AlarmsRequest struct {
	Drfs      []string
	TimeoutMs int64
}

func (r *AlarmsRequest) Marshal() ([]byte, error) {
	var b []byte
	for _, d := range r.Drfs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, d)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.TimeoutMs))
	return b, nil
}

type AlarmEvent struct {
	Drf               string
	Text              string
	TimestampUnixNano int64
}

type AlarmsResponse struct {
	Events []*AlarmEvent
}

func (r *AlarmsResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, e := range r.Events {
		var sub []byte
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendString(sub, e.Drf)
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendString(sub, e.Text)
		sub = protowire.AppendTag(sub, 3, protowire.VarintType)
		sub = protowire.AppendVarint(sub, uint64(e.TimestampUnixNano))
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b, nil
}

type SubscribeRequest struct {
	Drfs []string
}

func (r *SubscribeRequest) Marshal() ([]byte, error) {
	var b []byte
	for _, d := range r.Drfs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, d)
	}
	return b, nil
}
