package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	PointerSize int    `json:"pointer_size,omitempty"`
	Uptime      string `json:"uptime"`
}
