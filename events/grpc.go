package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCCallStart is emitted before a gRPC transport call.
type GRPCCallStart struct {
	Service string
	Method  string
	Target  string
}

// GRPCCallFinish is emitted after a gRPC transport call completes.
type GRPCCallFinish struct {
	Service  string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
