package tracing

// Span attribute keys for registry tracing.
const (
	// HTTP attributes, set by the server middleware.
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPRequestID  = "http.request_id"

	// Node type attributes, set by API handlers.
	AttrNodeTypeID      = "node_type.id"
	AttrNodeTypeVersion = "node_type.version"
	AttrNodeTypeKind    = "node_type.kind"

	// Listing attributes.
	AttrQueryFilter  = "query.q"
	AttrQueryKind    = "query.kind"
	AttrQueryResults = "query.result_count"

	// Error attributes.
	AttrErrorCode = "error.code"
)

// SpanPrefixHTTP prefixes every server span name.
const SpanPrefixHTTP = "http."

// Event names for span events.
const (
	// EventNodeTypePublished marks a successful publish inside a request
	// span.
	EventNodeTypePublished = "node_type.published"
)
