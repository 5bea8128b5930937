package handlers

// ErrorResponse is the body of every non-2xx answer. Detail carries the
// human readable reason the frontend displays.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
	Code   int    `json:"code,omitempty"`
}

// MessageResponse acknowledges an accepted command.
type MessageResponse struct {
	Message string `json:"message"`
	Started bool   `json:"started"`
}
