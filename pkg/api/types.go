// Package api holds the JSON types shared by the server and the client.
package api

// FileDto describes one stored file.
// Endpoints: /api/files/upload, /api/files/uploadFromService, /api/files/list
type FileDto struct {
	FileID          string `json:"fileId,omitempty"`
	Location        string `json:"location"`
	UserID          string `json:"userId,omitempty"`
	UploadSessionID string `json:"uploadSessionId,omitempty"`
	Filename        string `json:"filename"`
	SizeInBytes     int64  `json:"sizeInBytes"`
	Path            string `json:"path"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// Endpoint: /runtime/webhooks/storagesync
type StorageEvent struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic,omitempty"`
	Subject     string         `json:"subject"`
	EventType   string         `json:"eventType"`
	EventTime   string         `json:"eventTime,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	DataVersion string         `json:"dataVersion,omitempty"`
}

// SubscriptionValidationResponse answers an Event Grid validation handshake.
type SubscriptionValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}
