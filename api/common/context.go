package common

// ContextKey is the type of request context keys set by API middlewares.
type ContextKey string

// RequestIDContextKey is used to set a request id for tracing
// in a request context.
const RequestIDContextKey ContextKey = "request_id"
