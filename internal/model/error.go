package model

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error         string            `json:"error"`
	Kind          string            `json:"kind,omitempty"`
	Retryable     bool              `json:"retryable"`
	Fields        map[string]string `json:"fields,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
}
