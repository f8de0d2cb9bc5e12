package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beauremus/pacsys/audit"
	"github.com/beauremus/pacsys/policy"
)

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		entries = append(entries, m)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestAuditLogJSON_RequestOnlyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	ctx := policy.RequestContext{Drfs: []string{"M:OUTTMP"}, RPCMethod: "Read", Peer: "ipv4:127.0.0.1:1"}
	_, err = a.LogRequest(ctx, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.EqualValues(t, 1, e["seq"])
	assert.Equal(t, "in", e["dir"])
	assert.Equal(t, "ipv4:127.0.0.1:1", e["peer"])
	assert.Equal(t, "Read", e["method"])
	assert.Equal(t, []any{"M:OUTTMP"}, e["drfs"])
	assert.Equal(t, true, e["allowed"])
	assert.Nil(t, e["reason"])
	assert.Contains(t, e, "ts")
	assert.Contains(t, e["ts"], "T")
	assert.NotContains(t, e, "final_drfs")
}

func TestAuditLogJSON_DeniedRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	ctx := policy.RequestContext{Drfs: []string{"M:OUTTMP"}, RPCMethod: "Set", Peer: "peer"}
	_, err = a.LogRequest(ctx, policy.Deny("Write operations disabled"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0]["allowed"])
	assert.Equal(t, "Write operations disabled", entries[0]["reason"])
	assert.NotContains(t, entries[0], "final_drfs")
}

func TestAuditLogJSON_ResponseNoopWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.LogResponse(seq, "p", "Read", nil))
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	assert.Len(t, entries, 1)
}

func TestAuditLogJSON_ResponseLoggedWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path, audit.WithResponses(true))
	require.NoError(t, err)

	seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.LogResponse(seq, "p", "Read", nil))
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "in", entries[0]["dir"])
	assert.Equal(t, "out", entries[1]["dir"])
	assert.EqualValues(t, entries[0]["seq"], entries[1]["seq"])
}

func TestAuditLogJSON_MultipleResponsesSameSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path, audit.WithResponses(true))
	require.NoError(t, err)

	seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.LogResponse(seq, "p", "Read", nil))
	}
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 4)
	for _, e := range entries[1:] {
		assert.EqualValues(t, seq, e["seq"])
		assert.Equal(t, "out", e["dir"])
	}
}

func TestAuditLogJSON_FinalDrfsPresentWhenRewritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	ctx := policy.RequestContext{Drfs: []string{"T:OUTTMP"}, RPCMethod: "Read", Peer: "p"}
	rewritten := policy.Rewrite(policy.RequestContext{Drfs: []string{"M:OUTTMP"}, RPCMethod: "Read", Peer: "p"})
	_, err = a.LogRequest(ctx, rewritten)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"M:OUTTMP"}, entries[0]["final_drfs"])
}

func TestAuditLogJSON_FinalDrfsAbsentWhenUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	ctx := policy.RequestContext{Drfs: []string{"M:OUTTMP"}, RPCMethod: "Read", Peer: "p"}
	same := policy.Rewrite(policy.RequestContext{Drfs: []string{"M:OUTTMP"}, RPCMethod: "Read", Peer: "p"})
	_, err = a.LogRequest(ctx, same)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	assert.NotContains(t, entries[0], "final_drfs")
}

func TestAuditLogJSON_FinalDrfsAbsentWhenDenied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	ctx := policy.RequestContext{Drfs: []string{"T:OUTTMP"}, RPCMethod: "Read", Peer: "p"}
	_, err = a.LogRequest(ctx, policy.Deny("Device T:OUTTMP is denied"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	assert.NotContains(t, entries[0], "final_drfs")
}

func TestAuditLogJSON_SeqIncrementsByOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	require.NoError(t, a.Close())
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

type fakeProtoMessage struct {
	payload []byte
	fail    bool
}

func (m fakeProtoMessage) Marshal() ([]byte, error) {
	if m.fail {
		return nil, assert.AnError
	}
	return m.payload, nil
}

func readTaggedRecords(t *testing.T, path string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records [][]byte
	for i := 0; i < len(data); {
		tag := data[i]
		i++
		length, n := decodeVarint(data[i:])
		i += n
		payload := data[i : i+int(length)]
		i += int(length)
		records = append(records, append([]byte{tag}, payload...))
	}
	return records
}

func decodeVarint(data []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i, b := range data {
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}
	return result, len(data)
}

func TestAuditLogProto_RequestTags(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "audit.jsonl")
	protoPath := filepath.Join(dir, "audit.bin")
	a, err := audit.New(jsonPath, audit.WithProtoPath(protoPath))
	require.NoError(t, err)

	readCtx := policy.RequestContext{RPCMethod: "Read", Peer: "p", RawRequest: fakeProtoMessage{payload: []byte("read-req")}}
	_, err = a.LogRequest(readCtx, policy.Allow)
	require.NoError(t, err)

	setCtx := policy.RequestContext{RPCMethod: "Set", Peer: "p", RawRequest: fakeProtoMessage{payload: []byte("set-req")}}
	_, err = a.LogRequest(setCtx, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	records := readTaggedRecords(t, protoPath)
	require.Len(t, records, 2)
	assert.Equal(t, audit.TagReadRequest, records[0][0])
	assert.Equal(t, "read-req", string(records[0][1:]))
	assert.Equal(t, audit.TagSettingRequest, records[1][0])
	assert.Equal(t, "set-req", string(records[1][1:]))
}

func TestAuditLogProto_ReplyTags(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "audit.jsonl")
	protoPath := filepath.Join(dir, "audit.bin")
	a, err := audit.New(jsonPath, audit.WithProtoPath(protoPath), audit.WithResponses(true))
	require.NoError(t, err)

	seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.LogResponse(seq, "p", "Read", fakeProtoMessage{payload: []byte("read-reply")}))
	require.NoError(t, a.LogResponse(seq, "p", "Set", fakeProtoMessage{payload: []byte("set-reply")}))
	require.NoError(t, a.Close())

	records := readTaggedRecords(t, protoPath)
	require.Len(t, records, 2)
	assert.Equal(t, audit.TagReadReply, records[0][0])
	assert.Equal(t, audit.TagSettingReply, records[1][0])
}

func TestAuditLogProto_NoFileWhenPathNotSet(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "audit.jsonl")
	a, err := audit.New(jsonPath)
	require.NoError(t, err)

	_, err = a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p", RawRequest: fakeProtoMessage{payload: []byte("x")}}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, statErr := os.Stat(filepath.Join(dir, "audit.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAuditLogProto_NonSerializableSkippedButJSONWritten(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "audit.jsonl")
	protoPath := filepath.Join(dir, "audit.bin")
	a, err := audit.New(jsonPath, audit.WithProtoPath(protoPath))
	require.NoError(t, err)

	_, err = a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p", RawRequest: "not a proto message"}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, jsonPath)
	assert.Len(t, entries, 1)
	_, statErr := os.Stat(protoPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAuditLogProto_ResponseNotWrittenWhenLogResponsesFalse(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "audit.jsonl")
	protoPath := filepath.Join(dir, "audit.bin")
	a, err := audit.New(jsonPath, audit.WithProtoPath(protoPath))
	require.NoError(t, err)

	seq, err := a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p", RawRequest: fakeProtoMessage{payload: []byte("req")}}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.LogResponse(seq, "p", "Read", fakeProtoMessage{payload: []byte("reply")}))
	require.NoError(t, a.Close())

	records := readTaggedRecords(t, protoPath)
	require.Len(t, records, 1)
	assert.Equal(t, audit.TagReadRequest, records[0][0])
}

func TestAuditLogLifecycle_FlushIntervalBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path, audit.WithFlushInterval(3))
	require.NoError(t, err)

	ctx := policy.RequestContext{RPCMethod: "Read", Peer: "p"}
	_, err = a.LogRequest(ctx, policy.Allow)
	require.NoError(t, err)
	assert.Equal(t, 1, a.WritesSinceFlush())
	_, err = a.LogRequest(ctx, policy.Allow)
	require.NoError(t, err)
	assert.Equal(t, 2, a.WritesSinceFlush())
	_, err = a.LogRequest(ctx, policy.Allow)
	require.NoError(t, err)
	assert.Equal(t, 0, a.WritesSinceFlush())

	require.NoError(t, a.Close())
}

func TestAuditLogLifecycle_CloseFlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path, audit.WithFlushInterval(100))
	require.NoError(t, err)

	_, err = a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p"}, policy.Allow)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	entries := readJSONLines(t, path)
	assert.Len(t, entries, 1)
}

func TestAuditLogLifecycle_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := audit.New(path)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestAuditLogLifecycle_FlushIntervalZeroRaises(t *testing.T) {
	_, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"), audit.WithFlushInterval(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush_interval")
}

func TestAuditLogLifecycle_DefaultFlushIntervalIsOne(t *testing.T) {
	a, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1, a.FlushInterval())
}

func TestEncodeVarint(t *testing.T) {
	cases := []struct {
		value uint64
		want  []byte
	}{
		{5, []byte{5}},
		{300, []byte{0xAC, 0x02}},
		{0, []byte{0}},
	}
	for _, tc := range cases {
		dir := t.TempDir()
		jsonPath := filepath.Join(dir, "audit.jsonl")
		protoPath := filepath.Join(dir, "audit.bin")
		a, err := audit.New(jsonPath, audit.WithProtoPath(protoPath))
		require.NoError(t, err)

		payload := make([]byte, tc.value)
		_, err = a.LogRequest(policy.RequestContext{RPCMethod: "Read", Peer: "p", RawRequest: fakeProtoMessage{payload: payload}}, policy.Allow)
		require.NoError(t, err)
		require.NoError(t, a.Close())

		data, err := os.ReadFile(protoPath)
		require.NoError(t, err)
		assert.Equal(t, tc.want, data[1:1+len(tc.want)])
	}
}
