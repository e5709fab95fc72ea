package grpcsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/TimothyKlim/fetch/eventbus"
	events "github.com/TimothyKlim/fetch/events"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Transport issues one dynamic RPC. Source talks to backends through it, so
// tests and alternative substrates can swap the wire out.
type Transport interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}

// ErrTransportClosed reports a call on a closed transport.
var ErrTransportClosed = errors.New("grpcsource: transport closed")

// Dialer opens a client connection to a target. The default dialer uses
// insecure credentials; supply one to configure TLS, interceptors or other
// dial options.
type Dialer func(target string) (*grpc.ClientConn, error)

// GRPCTransport sends dynamic-protobuf RPCs over gRPC. It holds one lazily
// dialed connection per endpoint — gRPC multiplexes concurrent calls over a
// single HTTP/2 connection, so the engine's parallel rounds need no
// connection pool.
type GRPCTransport struct {
	provider    EndpointProvider
	dial        Dialer
	callTimeout time.Duration

	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

// TransportOption configures a GRPCTransport.
type TransportOption func(*GRPCTransport)

// WithCallTimeout caps every call at d, in addition to whatever deadline the
// caller's context carries. Zero disables the cap. Default 5s.
func WithCallTimeout(d time.Duration) TransportOption {
	return func(t *GRPCTransport) { t.callTimeout = d }
}

// WithDialer replaces the default insecure dialer.
func WithDialer(dial Dialer) TransportOption {
	return func(t *GRPCTransport) { t.dial = dial }
}

// NewTransport builds a transport that resolves endpoints through provider.
func NewTransport(provider EndpointProvider, opts ...TransportOption) *GRPCTransport {
	t := &GRPCTransport{
		provider:    provider,
		callTimeout: 5 * time.Second,
		conns:       make(map[string]*grpc.ClientConn),
		dial: func(target string) (*grpc.ClientConn, error) {
			return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Transport = (*GRPCTransport)(nil)

// Call implements Transport.
func (t *GRPCTransport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("%w: transport has no provider", ErrNoEndpoints)
	}
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	service := string(method.Parent().FullName())
	target, err := t.provider.Pick(ctx, service)
	if err != nil {
		return nil, err
	}
	cc, err := t.conn(target)
	if err != nil {
		return nil, err
	}

	fullMethod := fmt.Sprintf("/%s/%s", service, method.Name())
	start := time.Now()
	eventbus.Publish(ctx, events.GRPCCallStart{Service: service, Method: string(method.Name()), Target: target})
	resp := dynamicpb.NewMessage(method.Output())
	err = cc.Invoke(ctx, fullMethod, request.Interface(), resp)
	eventbus.Publish(ctx, events.GRPCCallFinish{
		Service:  service,
		Method:   string(method.Name()),
		Target:   target,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// conn returns the connection for target, dialing on first use. Failed
// dials are not cached; the next call retries.
func (t *GRPCTransport) conn(target string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if cc, ok := t.conns[target]; ok {
		return cc, nil
	}
	cc, err := t.dial(target)
	if err != nil {
		return nil, err
	}
	t.conns[target] = cc
	return cc, nil
}

// Close tears down every open connection. Further calls fail with
// ErrTransportClosed.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var firstErr error
	for _, cc := range t.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.conns = nil
	return firstErr
}
