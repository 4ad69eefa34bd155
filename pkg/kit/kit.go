// Package kit carries request-scoped values across transports and defines the
// endpoint/middleware shape shared by the audit and metrics layers.
package kit

import "context"

type ctxKey int

const (
	traceIDKey ctxKey = iota
	userIDKey
	requestIDKey
	transportKey
)

// Endpoint is a transport-agnostic operation.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain applies middlewares so that the first one is outermost.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string { return get(ctx, traceIDKey) }

// WithUserID stores the authenticated caller. For this system it is the account address.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(ctx context.Context) string { return get(ctx, userIDKey) }

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string { return get(ctx, requestIDKey) }

// WithTransport records how the request arrived: "http", "h3", "mcp" or "replay".
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

func GetTransport(ctx context.Context) string { return get(ctx, transportKey) }

func get(ctx context.Context, k ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
