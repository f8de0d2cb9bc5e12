// Package policy implements the supervised proxy's pluggable allow/
// deny/rewrite evaluator chain: an ordered list of Policy checks run
// per inbound RPC, with the first denial short-circuiting the rest.
package policy

import (
	"github.com/beauremus/pacsys/drf"
)

// RequestContext is passed to every Policy.Check for a single RPC.
// Drfs may be replaced by a rewriting policy; downstream policies and
// the backend see the rewritten slice, never the caller's original.
type RequestContext struct {
	Drfs      []string
	RPCMethod string // "Read", "Set", or "Alarms"
	Peer      string
	Metadata  map[string]string

	// RawRequest is the original RPC request message, carried through
	// for sinks (audit's binary log) that need to serialize it
	// verbatim. Policies never need to inspect it.
	RawRequest any
}

// Decision is the result of one policy check. Allowed=false always
// carries a non-empty Reason — constructing a denial without one is a
// programming error, enforced by the Deny constructor below.
type Decision struct {
	Allowed bool
	Reason  string

	// Ctx, when non-nil, is the (possibly rewritten) context downstream
	// policies and the backend should use instead of the caller's
	// original. Only meaningful when Allowed is true.
	Ctx *RequestContext
}

// Allow is the zero-value "no objection" decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial, panicking if reason is empty — a denial
// without a reason violates the invariant every caller of Check relies
// on for audit logging and RPC error messages.
func Deny(reason string) Decision {
	if reason == "" {
		panic("policy: Deny requires a non-empty reason")
	}
	return Decision{Allowed: false, Reason: reason}
}

// Rewrite allows the request but substitutes ctx for what downstream
// policies and the backend observe.
func Rewrite(ctx RequestContext) Decision {
	return Decision{Allowed: true, Ctx: &ctx}
}

// Policy is one evaluator in the chain.
type Policy interface {
	Check(ctx RequestContext) Decision
}

// Evaluate runs policies in order. The first denial short-circuits
// and is returned as-is. If every policy allows, the final
// (possibly rewritten across the chain) RequestContext is returned
// alongside an allowing Decision.
func Evaluate(policies []Policy, ctx RequestContext) (Decision, RequestContext) {
	current := ctx
	for _, p := range policies {
		decision := p.Check(current)
		if !decision.Allowed {
			return decision, current
		}
		if decision.Ctx != nil {
			current = *decision.Ctx
		}
	}
	return Decision{Allowed: true, Ctx: &current}, current
}

// ReadOnly denies any Set RPC and allows everything else.
type ReadOnly struct{}

func (ReadOnly) Check(ctx RequestContext) Decision {
	if ctx.RPCMethod == "Set" {
		return Deny("Write operations disabled")
	}
	return Allow
}

// deviceName returns the canonical device-name prefix of a DRF
// string. Falls back to the raw string on parse failure so a
// malformed DRF still gets matched against glob patterns rather than
// silently bypassing the policy.
func deviceName(raw string) string {
	req, err := drf.ParseRequest(raw)
	if err != nil {
		return raw
	}
	return req.Device.Name
}
