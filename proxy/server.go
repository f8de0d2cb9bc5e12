// Package proxy implements the supervised proxy: a gRPC front end that
// terminates Read/Set/Alarms/Subscribe, runs every inbound request
// through a policy chain, audits the outcome, and only then forwards
// the (possibly rewritten) request to a configured backend.
package proxy

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/beauremus/pacsys/audit"
	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/policy"
	"github.com/beauremus/pacsys/proxy/pacsyspb"
	"github.com/beauremus/pacsys/value"
)

// Config carries the proxy's construction-time options, matching
// spec.md's configuration surface for the supervised proxy.
type Config struct {
	Token        []byte
	Policies     []policy.Policy
	LogResponses bool
	Log          *zap.Logger
}

// Server implements pacsyspb.PacsysServer over a backend.Backend.
type Server struct {
	pacsyspb.UnimplementedPacsysServer

	backend backend.Backend
	audit   *audit.AuditLog
	cfg     Config
	log     *zap.Logger
}

// New builds a Server. auditLog must outlive the server; callers close
// it themselves once the server has stopped.
func New(be backend.Backend, auditLog *audit.AuditLog, cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{backend: be, audit: auditLog, cfg: cfg, log: log}
}

func peerString(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

func incomingMetadata(ctx context.Context) map[string]string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	flat := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return flat
}

// checkToken enforces the bearer-token requirement spec.md places on
// Set and Subscribe. A zero-length Config.Token disables the check
// entirely (useful for local/dev deployments without a configured
// token).
func (s *Server) checkToken(ctx context.Context) error {
	if len(s.cfg.Token) == 0 {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return &pacsyserr.AuthenticationError{Message: "missing authorization metadata"}
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return &pacsyserr.AuthenticationError{Message: "missing authorization metadata"}
	}
	const prefix = "Bearer "
	raw := values[0]
	if !strings.HasPrefix(raw, prefix) {
		return &pacsyserr.AuthenticationError{Message: "malformed authorization header"}
	}
	presented := []byte(strings.TrimPrefix(raw, prefix))
	if subtle.ConstantTimeCompare(presented, s.cfg.Token) != 1 {
		return &pacsyserr.AuthenticationError{Message: "token mismatch"}
	}
	return nil
}

// evaluate runs the policy chain, logs the request, and returns the
// (possibly rewritten) context alongside the assigned sequence number.
// If the request is denied, the returned error is non-nil and already
// mapped to an RPC status.
func (s *Server) evaluate(ctx policy.RequestContext) (policy.RequestContext, uint64, error) {
	decision, final := policy.Evaluate(s.cfg.Policies, ctx)
	seq, logErr := s.audit.LogRequest(ctx, decision)
	if logErr != nil {
		s.log.Error("failed to write audit log entry", zap.Error(logErr))
	}
	if !decision.Allowed {
		return final, seq, &pacsyserr.PolicyDenied{Reason: decision.Reason}
	}
	return final, seq, nil
}

func (s *Server) logResponse(seq uint64, peerAddr, method string, raw any) {
	if !s.cfg.LogResponses {
		return
	}
	if err := s.audit.LogResponse(seq, peerAddr, method, raw); err != nil {
		s.log.Error("failed to write audit response entry", zap.Error(err))
	}
}

func timeoutFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Read services a unary read of one or more drfs.
func (s *Server) Read(ctx context.Context, req *pacsyspb.ReadRequest) (*pacsyspb.ReadResponse, error) {
	reqCtx := policy.RequestContext{
		Drfs:       req.Drfs,
		RPCMethod:  "Read",
		Peer:       peerString(ctx),
		Metadata:   incomingMetadata(ctx),
		RawRequest: req,
	}
	final, seq, err := s.evaluate(reqCtx)
	if err != nil {
		return nil, toStatus(err)
	}

	readings, err := s.backend.GetMany(ctx, final.Drfs, timeoutFromMs(req.TimeoutMs))
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &pacsyspb.ReadResponse{Readings: make([]*pacsyspb.Reading, len(readings))}
	for i, r := range readings {
		resp.Readings[i] = readingToPB(r)
	}
	s.logResponse(seq, reqCtx.Peer, "Read", resp)
	return resp, nil
}

// Set services a unary batch write.
func (s *Server) Set(ctx context.Context, req *pacsyspb.SetRequest) (*pacsyspb.SetResponse, error) {
	if err := s.checkToken(ctx); err != nil {
		return nil, toStatus(err)
	}

	drfs := make([]string, len(req.Settings))
	for i, st := range req.Settings {
		drfs[i] = st.Drf
	}
	reqCtx := policy.RequestContext{
		Drfs:       drfs,
		RPCMethod:  "Set",
		Peer:       peerString(ctx),
		Metadata:   incomingMetadata(ctx),
		RawRequest: req,
	}
	final, seq, err := s.evaluate(reqCtx)
	if err != nil {
		return nil, toStatus(err)
	}

	settings := make([]backend.Setting, len(req.Settings))
	for i, st := range req.Settings {
		drf := st.Drf
		if i < len(final.Drfs) {
			drf = final.Drfs[i]
		}
		settings[i] = backend.Setting{Drf: drf, Value: pbToValue(st.Value)}
	}
	results, err := s.backend.WriteMany(ctx, settings, timeoutFromMs(req.TimeoutMs))
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &pacsyspb.SetResponse{Results: make([]*pacsyspb.WriteResult, len(results))}
	for i, r := range results {
		resp.Results[i] = &pacsyspb.WriteResult{
			Drf:       r.Drf,
			Facility:  int32(r.Facility),
			ErrorCode: int32(r.ErrorCode),
			Message:   r.Message,
		}
	}
	s.logResponse(seq, reqCtx.Peer, "Set", resp)
	return resp, nil
}

// Alarms reads the alarm-property drfs given and reports each as an
// event carrying the backend's status message.
func (s *Server) Alarms(ctx context.Context, req *pacsyspb.AlarmsRequest) (*pacsyspb.AlarmsResponse, error) {
	reqCtx := policy.RequestContext{
		Drfs:       req.Drfs,
		RPCMethod:  "Alarms",
		Peer:       peerString(ctx),
		Metadata:   incomingMetadata(ctx),
		RawRequest: req,
	}
	final, seq, err := s.evaluate(reqCtx)
	if err != nil {
		return nil, toStatus(err)
	}

	readings, err := s.backend.GetMany(ctx, final.Drfs, timeoutFromMs(req.TimeoutMs))
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &pacsyspb.AlarmsResponse{Events: make([]*pacsyspb.AlarmEvent, len(readings))}
	for i, r := range readings {
		resp.Events[i] = &pacsyspb.AlarmEvent{
			Drf:               r.Drf,
			Text:              alarmText(r),
			TimestampUnixNano: r.Timestamp.UnixNano(),
		}
	}
	s.logResponse(seq, reqCtx.Peer, "Alarms", resp)
	return resp, nil
}

func alarmText(r value.Reading) string {
	if r.Message != "" {
		return r.Message
	}
	if r.Value != nil {
		if text, ok := r.Value.AsText(); ok {
			return text
		}
	}
	return ""
}

// Subscribe routes to a single getMany-and-close when every drf is
// one-shot (spec.md's Subscribe routing rule); otherwise it opens a
// live backend subscription and forwards readings until the client
// cancels, a send fails, or the backend reports an error. A clean stop
// signalled by the backend does not end the stream.
func (s *Server) Subscribe(req *pacsyspb.SubscribeRequest, stream pacsyspb.Pacsys_SubscribeServer) error {
	ctx := stream.Context()
	if err := s.checkToken(ctx); err != nil {
		return toStatus(err)
	}

	reqCtx := policy.RequestContext{
		Drfs:       req.Drfs,
		RPCMethod:  "Read",
		Peer:       peerString(ctx),
		Metadata:   incomingMetadata(ctx),
		RawRequest: req,
	}
	final, seq, err := s.evaluate(reqCtx)
	if err != nil {
		return toStatus(err)
	}

	if allOneShot(final.Drfs) {
		readings, err := s.backend.GetMany(ctx, final.Drfs, 0)
		if err != nil {
			return toStatus(err)
		}
		for _, r := range readings {
			pb := readingToPB(r)
			s.logResponse(seq, reqCtx.Peer, "Read", pb)
			if err := stream.Send(pb); err != nil {
				return err
			}
		}
		return nil
	}

	errCh := make(chan error, 1)
	handle, err := s.backend.Subscribe(ctx, final.Drfs, func(r value.Reading) {
		pb := readingToPB(r)
		s.logResponse(seq, reqCtx.Peer, "Read", pb)
		if sendErr := stream.Send(pb); sendErr != nil {
			select {
			case errCh <- sendErr:
			default:
			}
		}
	}, func(subErr error) {
		select {
		case errCh <- subErr:
		default:
		}
	})
	if err != nil {
		return toStatus(err)
	}
	defer s.backend.Remove(handle)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return toStatus(err)
		}
		return nil
	}
}
