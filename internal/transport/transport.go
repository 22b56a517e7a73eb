// Package transport defines the contract between network front ends and the
// support pipeline.
//
// A transport decodes requests in its own wire format, hands them to the
// Handler and encodes the result. It never looks inside the pipeline.
package transport

import (
	"context"

	"github.com/nadzzz/supportline/internal/message"
)

// Handler processes one support request. baseAddress is the public root URL
// used to build links to generated audio.
type Handler func(ctx context.Context, req *message.SupportRequest, baseAddress string) (*message.SupportResponse, error)

// Transport is implemented by every front end.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting requests and passes them to handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
