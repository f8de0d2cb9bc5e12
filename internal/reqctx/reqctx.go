// Package reqctx holds the typed request-scoped context keys threaded
// through a single proxy RPC: caller identity, request ID, the policy
// decision that was reached, and the audit sequence number assigned
// to it.
package reqctx

import "context"

type contextKey string

const (
	// RequestIDKey is the context key for the per-RPC request ID.
	RequestIDKey contextKey = "request_id"
	// PeerKey is the context key for the caller's address string.
	PeerKey contextKey = "peer"
	// AuditSeqKey is the context key for the audit log sequence number
	// assigned to this request.
	AuditSeqKey contextKey = "audit_seq"
	// PolicyAllowedKey is the context key for the policy chain's
	// allow/deny outcome.
	PolicyAllowedKey contextKey = "policy_allowed"
)

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithPeer returns a new context carrying the caller's peer address.
func WithPeer(ctx context.Context, peer string) context.Context {
	return context.WithValue(ctx, PeerKey, peer)
}

// WithAuditSeq returns a new context carrying the audit sequence number.
func WithAuditSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, AuditSeqKey, seq)
}

// WithPolicyAllowed returns a new context carrying the policy decision.
func WithPolicyAllowed(ctx context.Context, allowed bool) context.Context {
	return context.WithValue(ctx, PolicyAllowedKey, allowed)
}

// RequestID extracts the request ID, if any.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(RequestIDKey).(string)
	return v, ok
}

// Peer extracts the caller's peer address, if any.
func Peer(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(PeerKey).(string)
	return v, ok
}

// AuditSeq extracts the audit sequence number, if any.
func AuditSeq(ctx context.Context) (uint64, bool) {
	v, ok := ctx.Value(AuditSeqKey).(uint64)
	return v, ok
}

// PolicyAllowed extracts the policy decision, if any.
func PolicyAllowed(ctx context.Context) (bool, bool) {
	v, ok := ctx.Value(PolicyAllowedKey).(bool)
	return v, ok
}
