package constants

// Route paths shared by the router and the handlers that build URLs.
const (
	APIPrefix          = "/api/v1"
	PhotosRoute        = "/photos"
	PhotoStatusRoute   = "/photos/:id/status"
	PhotoRoute         = "/photos/:id"
	UsageRoute         = "/usage"
	AdminRoute         = "/admin"
	StripeWebhookRoute = "/webhooks/stripe"
	HealthRoute        = "/healthz"
	// ScriptsRoute serves public/js, including the photo polling script.
	ScriptsRoute = "/js"
)
