package responses

// Success is the body of every 2xx JSON response.
type Success struct {
	Data any `json:"data"`
}

// APIError is the client-facing part of an error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Failure is the body of every error response.
type Failure struct {
	Error APIError `json:"error"`
}
