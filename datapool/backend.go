// Package datapool implements the data-pool HTTP/WebSocket backend:
// a pooled round-robin connection set for unary get/write calls, plus
// one dedicated long-lived duplex connection multiplexing every live
// subscription by subscription ID.
package datapool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/beauremus/pacsys/backend"
	"github.com/beauremus/pacsys/pacsyserr"
	"github.com/beauremus/pacsys/subscription"
	"github.com/beauremus/pacsys/value"
)

// Config configures a Backend. Role and Token are required for the
// AUTH capability: without both set, Write/WriteMany always fail with
// UnsupportedOperation, matching spec.md's "writes require the AUTH
// capability and a configured role."
type Config struct {
	URL          string
	PoolSize     int
	Role         string
	Token        string
	Log          *zap.Logger
	SubCapacity  int
}

// Backend is the pacsys backend.Backend implementation over a
// data-pool HTTP/WebSocket upstream.
type Backend struct {
	cfg  Config
	caps backend.CapabilitySet
	log  *zap.Logger

	pool *pool

	subMu   sync.Mutex
	subConn *wsConn
	subs    map[string]*subscription.Handle
	subSeq  uint64
}

// Open dials cfg.PoolSize (default DefaultPoolSize) pooled connections
// plus one dedicated subscription connection.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	caps := backend.NewCapabilitySet(backend.CapRead, backend.CapStream, backend.CapBatch)
	if cfg.Role != "" && cfg.Token != "" {
		caps = backend.NewCapabilitySet(backend.CapRead, backend.CapWrite, backend.CapStream, backend.CapBatch, backend.CapAuth)
	}

	p, err := dialPool(ctx, cfg.URL, cfg.PoolSize, log)
	if err != nil {
		return nil, err
	}

	subConn, err := dialConn(ctx, cfg.URL, log)
	if err != nil {
		p.close()
		return nil, err
	}

	b := &Backend{
		cfg:     cfg,
		caps:    caps,
		log:     log,
		pool:    p,
		subConn: subConn,
		subs:    make(map[string]*subscription.Handle),
	}
	subConn.dispatch = b.handleSubFrame
	subConn.onClose = b.handleDisconnect
	return b, nil
}

func (b *Backend) Capabilities() backend.CapabilitySet { return b.caps }

func (b *Backend) Read(ctx context.Context, drf string, timeout time.Duration) (value.Value, error) {
	r, err := b.Get(ctx, drf, timeout)
	if err != nil {
		return value.Value{}, err
	}
	if r.IsError() {
		return value.Value{}, &pacsyserr.DeviceError{Drf: drf, Facility: r.Facility, ErrorCode: int(r.ErrorCode), Message: r.Message}
	}
	if r.Value == nil {
		return value.Value{}, &pacsyserr.DeviceError{Drf: drf, Message: "no value in reading"}
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

func (b *Backend) GetMany(ctx context.Context, drfs []string, timeout time.Duration) ([]value.Reading, error) {
	if err := b.caps.Require("datapool", "GetMany", backend.CapRead); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	reply, err := b.pool.call(ctx, wireMessage{Type: "getMany", Drfs: drfs})
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &pacsyserr.DeviceError{Message: reply.Error}
	}
	out := make([]value.Reading, len(reply.Readings))
	for i, w := range reply.Readings {
		out[i] = wireToReading(w)
	}
	return out, nil
}

func (b *Backend) Write(ctx context.Context, drf string, v value.Value, timeout time.Duration) (value.WriteResult, error) {
	results, err := b.WriteMany(ctx, []backend.Setting{{Drf: drf, Value: v}}, timeout)
	if err != nil {
		return value.WriteResult{}, err
	}
	return results[0], nil
}

func (b *Backend) WriteMany(ctx context.Context, settings []backend.Setting, timeout time.Duration) ([]value.WriteResult, error) {
	if err := b.caps.Require("datapool", "WriteMany", backend.CapWrite|backend.CapAuth); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	wireSettings := make([]wireWrite, len(settings))
	for i, s := range settings {
		wireSettings[i] = wireWrite{Drf: s.Drf, Value: valueToWire(s.Value)}
	}
	reply, err := b.pool.call(ctx, wireMessage{Type: "writeMany", Settings: wireSettings, Token: b.cfg.Token, Role: b.cfg.Role})
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &pacsyserr.AuthenticationError{Message: reply.Error}
	}
	out := make([]value.WriteResult, len(reply.Results))
	for i, r := range reply.Results {
		out[i] = value.WriteResult{Drf: r.Drf, Facility: r.Facility, ErrorCode: int8(r.ErrorCode), Message: r.Message}
	}
	return out, nil
}

func (b *Backend) Subscribe(ctx context.Context, drfs []string, callback func(value.Reading), onError func(error)) (*subscription.Handle, error) {
	if err := b.caps.Require("datapool", "Subscribe", backend.CapStream); err != nil {
		return nil, err
	}

	subID := fmt.Sprintf("sub-%d", atomic.AddUint64(&b.subSeq, 1))
	handle := subscription.New(b.cfg.SubCapacity, []string{subID}, callback, onError, b.log)

	b.subMu.Lock()
	b.subs[subID] = handle
	b.subMu.Unlock()

	if err := b.subConn.send(wireMessage{Type: "subscribe", SubID: subID, Drfs: drfs}); err != nil {
		b.subMu.Lock()
		delete(b.subs, subID)
		b.subMu.Unlock()
		return nil, &pacsyserr.SSHError{Message: "failed to open data-pool subscription", Cause: err}
	}
	return handle, nil
}

func (b *Backend) Remove(handle *subscription.Handle) error {
	for _, subID := range handle.RefIDs() {
		b.subMu.Lock()
		delete(b.subs, subID)
		b.subMu.Unlock()
		b.subConn.send(wireMessage{Type: "unsubscribe", SubID: subID})
	}
	handle.SignalStop()
	return nil
}

func (b *Backend) StopStreaming() error {
	b.subMu.Lock()
	handles := make([]*subscription.Handle, 0, len(b.subs))
	for _, h := range b.subs {
		handles = append(handles, h)
	}
	b.subs = make(map[string]*subscription.Handle)
	b.subMu.Unlock()

	for _, h := range handles {
		h.SignalStop()
	}
	return nil
}

// Close releases every pooled connection and the subscription
// connection. No automatic resubscription is attempted afterward.
func (b *Backend) Close() error {
	b.StopStreaming()
	var firstErr error
	if err := b.subConn.close(); err != nil {
		firstErr = err
	}
	if err := b.pool.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *Backend) handleSubFrame(msg wireMessage) {
	b.subMu.Lock()
	handle, ok := b.subs[msg.SubID]
	b.subMu.Unlock()
	if !ok {
		return
	}
	switch msg.Type {
	case "reading":
		for _, w := range msg.Readings {
			handle.Dispatch(wireToReading(w))
		}
	case "error":
		handle.SignalError(&pacsyserr.DeviceError{Message: msg.Error})
	}
}

// handleDisconnect fans ConnectionLost out to every live subscription
// handle. Per spec.md, the backend never automatically resubscribes;
// callers must Subscribe again against a freshly opened Backend.
func (b *Backend) handleDisconnect() {
	b.subMu.Lock()
	handles := make([]*subscription.Handle, 0, len(b.subs))
	for _, h := range b.subs {
		handles = append(handles, h)
	}
	b.subs = make(map[string]*subscription.Handle)
	b.subMu.Unlock()

	err := &pacsyserr.SSHConnectionError{Host: b.cfg.URL, Message: "data-pool connection lost"}
	for _, h := range handles {
		h.SignalError(err)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
