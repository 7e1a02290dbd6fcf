package constants

// Static route constants
const (
	APIRoute      = "/api"
	InternalRoute = "/internal"
	WebhooksRoute = "/webhooks/:provider"
	MetricsRoute  = "/metrics"
)
