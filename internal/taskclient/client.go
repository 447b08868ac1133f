// Package taskclient is the boundary to the external generative-text service.
//
// Stations depend only on the Client interface. The Gemini type talks to the
// real service; Resilient decorates any Client with a timeout race, retries
// with backoff, a fallback model, a rate limiter and an optional response cache.
package taskclient

import (
	"context"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

// Client performs one text-generation call.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

// Generate implements Client
func (f ClientFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Forgetter is implemented by clients that keep responses, so that a
// response the caller rejected is not served again.
type Forgetter interface {
	Forget(req Request)
}

// Reject tells c that the response to req was unusable. Clients that do not
// keep responses ignore it.
func Reject(c Client, req Request) {
	if f, ok := c.(Forgetter); ok {
		f.Forget(req)
	}
}

// Unavailable is the client used when no credential is configured.
// Every call fails with an infrastructure error.
type Unavailable struct{}

// Generate implements Client
func (Unavailable) Generate(context.Context, Request) (Response, error) {
	return Response{}, errors.NewTaskClientMissingError()
}
