// Package httpcgi implements the read-only, batch-capable HTTP CGI
// backend: a single GET per batch of device reads, with automatic
// per-device fallback when the upstream interpreter aborts the whole
// batch on the first bad device.
package httpcgi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

const (
	// DefaultBaseURL is the public ACL CGI endpoint used when none is
	// configured.
	DefaultBaseURL = "https://www-bd.fnal.gov/cgi-bin/acl.pl"
	// DefaultTimeout is applied when a call site passes a zero timeout.
	DefaultTimeout = 5 * time.Second

	// aclCmdSep separates batched ACL commands in the query string; ACL
	// usage requires semicolons between commands to be backslash-escaped.
	aclCmdSep = `\;`
)

// safeQueryChars are passed through raw by quoteDRF, matching the ACL CGI
// endpoint's own decoding: it unescapes only spaces and single quotes, so
// DRF punctuation must reach it unescaped or the device name won't match.
const safeQueryChars = `:[]@,.$|~`

var aclErrorCodeRe = regexp.MustCompile(`^[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+$`)

// Backend is the HTTP CGI read-only backend. READ | BATCH only.
type Backend struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *zap.Logger
	closed  bool
}

// New builds a Backend. An empty baseURL defaults to DefaultBaseURL; a
// zero timeout defaults to DefaultTimeout.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Backend {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
		log:     log,
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Capabilities() backend.CapabilitySet {
	return backend.NewCapabilitySet(backend.CapRead, backend.CapBatch)
}

// quoteDRF passes ASCII letters, digits, '_', '-' and everything in
// safeQueryChars through raw; every other rune is escaped with
// url.QueryEscape (so a space becomes "+").
func quoteDRF(drf string) string {
	var sb strings.Builder
	for _, r := range drf {
		if r < 0x80 && (strings.ContainsRune(safeQueryChars, r) ||
			(r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-') {
			sb.WriteRune(r)
			continue
		}
		sb.WriteString(url.QueryEscape(string(r)))
	}
	return sb.String()
}

// buildURL constructs the ACL CGI URL for one or more devices: a single
// "read+DEVICE" command, or multiple joined with the escaped semicolon.
func (b *Backend) buildURL(drfs []string) string {
	commands := make([]string, len(drfs))
	for i, drf := range drfs {
		commands[i] = "read+" + quoteDRF(drf)
	}
	return b.baseURL + "?acl=" + strings.Join(commands, aclCmdSep)
}

// Execute runs a raw ACL command string, placed verbatim after "?acl=".
func (b *Backend) Execute(ctx context.Context, aclCommand string, timeout time.Duration) (string, error) {
	if b.closed {
		return "", fmt.Errorf("httpcgi: backend is closed")
	}
	if timeout <= 0 {
		timeout = b.timeout
	}
	return b.fetch(ctx, b.baseURL+"?acl="+aclCommand, timeout)
}

func (b *Backend) fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &pacsyserr.DeviceError{Facility: 0, ErrorCode: value.ErrRetry, Message: fmt.Sprintf("ACL request failed (%s): %v", rawURL, err)}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &pacsyserr.DeviceError{Facility: 0, ErrorCode: value.ErrTimeout, Message: fmt.Sprintf("ACL request timed out after %s (%s)", timeout, b.baseURL)}
		}
		return "", &pacsyserr.DeviceError{Facility: 0, ErrorCode: value.ErrRetry, Message: fmt.Sprintf("ACL request failed (%s): %v", b.baseURL, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &pacsyserr.DeviceError{Facility: 0, ErrorCode: value.ErrRetry, Message: fmt.Sprintf("ACL request failed reading body (%s): %v", rawURL, err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &pacsyserr.DeviceError{Facility: 0, ErrorCode: value.ErrRetry, Message: fmt.Sprintf("ACL request failed (%s): HTTP %d", rawURL, resp.StatusCode)}
	}
	return string(body), nil
}

func (b *Backend) Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error) {
	r, err := b.Get(ctx, drf, timeout)
	if err != nil {
		return value.Value{}, err
	}
	if !r.Ok() {
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("read failed with status %d", r.ErrorCode)
		}
		return value.Value{}, &pacsyserr.DeviceError{Drf: r.Drf, Facility: r.Facility, ErrorCode: int(r.ErrorCode), Message: msg}
	}
	return *r.Value, nil
}

func (b *Backend) Get(ctx context.Context, drf string, timeout time.Duration) (value.Reading, error) {
	readings, err := b.GetMany(ctx, []string{drf}, timeout)
	if err != nil {
		return value.Reading{}, err
	}
	return readings[0], nil
}

// GetMany sends a single semicolon-joined batch request. If the line
// count mismatches or any line is an upstream error, it falls back to one
// request per device so good devices still return values.
func (b *Backend) GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error) {
	if b.closed {
		return nil, fmt.Errorf("httpcgi: backend is closed")
	}
	if len(drfs) == 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = b.timeout
	}

	rawURL := b.buildURL(drfs)
	text, err := b.fetch(ctx, rawURL, timeout)
	if err != nil {
		var de *pacsyserr.DeviceError
		if de2, ok := err.(*pacsyserr.DeviceError); ok {
			de = de2
		}
		now := time.Now()
		readings := make([]value.Reading, len(drfs))
		for i, drf := range drfs {
			msg := ""
			code := value.ErrRetry
			if de != nil {
				msg = de.Message
				code = de.ErrorCode
			}
			readings[i] = value.Reading{Drf: drf, ValueType: value.Scalar, ErrorCode: normalizeInt8(code), Message: msg, Timestamp: now}
		}
		return readings, nil
	}

	lines := splitLines(text)
	if len(lines) != len(drfs) || anyError(lines) {
		b.log.Debug("ACL batch error/mismatch, falling back to individual reads",
			zap.Int("lines", len(lines)), zap.Int("drfs", len(drfs)))
		return b.getManyIndividual(ctx, drfs, timeout), nil
	}

	now := time.Now()
	readings := make([]value.Reading, len(drfs))
	for i, line := range lines {
		v, vt := parseACLLine(line)
		readings[i] = value.Reading{Drf: drfs[i], ValueType: vt, Value: &v, ErrorCode: 0, Timestamp: now}
	}
	return readings, nil
}

func (b *Backend) getManyIndividual(ctx context.Context, drfs []string, timeout time.Duration) []value.Reading {
	now := time.Now()
	readings := make([]value.Reading, len(drfs))
	for i, drf := range drfs {
		rawURL := b.buildURL([]string{drf})
		text, err := b.fetch(ctx, rawURL, timeout)
		if err != nil {
			msg, code := "", value.ErrRetry
			if de, ok := err.(*pacsyserr.DeviceError); ok {
				msg, code = de.Message, de.ErrorCode
			}
			readings[i] = value.Reading{Drf: drf, ValueType: value.Scalar, ErrorCode: normalizeInt8(code), Message: msg, Timestamp: now}
			continue
		}
		lines := splitLines(text)
		if len(lines) == 0 {
			readings[i] = value.Reading{Drf: drf, ValueType: value.Scalar, ErrorCode: normalizeInt8(value.ErrRetry), Message: "empty ACL response", Timestamp: now}
			continue
		}
		line := lines[0]
		if isErr, msg := isErrorResponse(line); isErr {
			readings[i] = value.Reading{Drf: drf, ValueType: value.Scalar, ErrorCode: normalizeInt8(value.ErrRetry), Message: msg, Timestamp: now}
			continue
		}
		v, vt := parseACLLine(line)
		readings[i] = value.Reading{Drf: drf, ValueType: vt, Value: &v, ErrorCode: 0, Timestamp: now}
	}
	return readings
}

func normalizeInt8(composite int) int8 {
	_, errNum := value.DecomposeErrorCode(composite)
	return errNum
}

func (b *Backend) Write(context.Context, string, value.Value, time.Duration) (value.WriteResult, error) {
	return value.WriteResult{}, &pacsyserr.UnsupportedOperation{Backend: "httpcgi", Operation: "Write"}
}

func (b *Backend) WriteMany(context.Context, []backend.Setting, time.Duration) ([]value.WriteResult, error) {
	return nil, &pacsyserr.UnsupportedOperation{Backend: "httpcgi", Operation: "WriteMany"}
}

func (b *Backend) Subscribe(context.Context, []string, func(value.Reading), func(error)) (*subscription.Handle, error) {
	return nil, &pacsyserr.UnsupportedOperation{Backend: "httpcgi", Operation: "Subscribe"}
}

func (b *Backend) Remove(*subscription.Handle) error {
	return &pacsyserr.UnsupportedOperation{Backend: "httpcgi", Operation: "Remove"}
}

func (b *Backend) StopStreaming() error {
	return &pacsyserr.UnsupportedOperation{Backend: "httpcgi", Operation: "StopStreaming"}
}

func (b *Backend) Close() error {
	b.closed = true
	return nil
}

func splitLines(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func anyError(lines []string) bool {
	for _, l := range lines {
		if isErr, _ := isErrorResponse(l); isErr {
			return true
		}
	}
	return false
}

// isErrorResponse recognizes the two ACL error shapes: a leading "!", or
// a trailing " - ERROR_CODE" token matching the ALL_CAPS_WITH_UNDERSCORES
// convention (DIO_NO_SUCH, CLIB_SYNTAX, ...).
func isErrorResponse(line string) (bool, string) {
	text := strings.TrimSpace(line)
	if strings.HasPrefix(text, "!") {
		return true, strings.TrimSpace(text[1:])
	}
	if idx := strings.LastIndex(text, " - "); idx >= 0 {
		code := strings.TrimSpace(text[idx+3:])
		if aclErrorCodeRe.MatchString(code) {
			return true, text
		}
	}
	return false, ""
}

// parseACLLine parses one line of ACL output ("DEVICE = VALUE [UNITS]",
// or a bare value) into a Value, trying in order: whole string as float,
// all tokens as floats (array), all-but-last as floats (array + dropped
// unit), first token as float (scalar + dropped unit), else text.
func parseACLLine(line string) (value.Value, value.Type) {
	text := strings.TrimSpace(line)
	raw := text
	if idx := strings.Index(text, "="); idx >= 0 {
		raw = strings.TrimSpace(text[idx+1:])
	}
	if raw == "" {
		return value.NewText(text), value.Text
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return value.NewScalar(f), value.Scalar
	}

	tokens := strings.Fields(raw)

	if len(tokens) > 1 {
		if arr, ok := allFloats(tokens); ok {
			return value.NewScalarArray(arr), value.ScalarArray
		}
	}
	if len(tokens) > 2 {
		if arr, ok := allFloats(tokens[:len(tokens)-1]); ok {
			return value.NewScalarArray(arr), value.ScalarArray
		}
	}
	if len(tokens) > 0 {
		if f, err := strconv.ParseFloat(tokens[0], 64); err == nil {
			return value.NewScalar(f), value.Scalar
		}
	}
	return value.NewText(raw), value.Text
}

func allFloats(tokens []string) ([]float64, bool) {
	out := make([]float64, len(tokens))
	for i, t := range tokens {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
