// Package middleware provides HTTP observability middleware for the chatsync
// server.
//
// This package includes:
//   - OpenTelemetry tracing: one server span per request
//   - Prometheus metrics: request counts and durations per route
//
// Both work with any net/http router. With chi, labels and span names use
// the matched route pattern ("/api/chats/{id}") rather than the raw path,
// which keeps label cardinality bounded.
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.OpenTelemetry(middleware.WithTracerName("chatsync")),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	)
//
// Expose the registry with promhttp:
//
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Handlers reach the request span through the request context:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    span := trace.SpanFromContext(r.Context())
//	    span.SetAttributes(attribute.Int("chats", n))
//	}
package middleware
