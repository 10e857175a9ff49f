package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries a progress snapshot for a non-terminal job.
type WSProgressMessage struct {
	Type          string             `json:"type"`
	JobID         string             `json:"jobId"`
	Status        JobStatus          `json:"status"`
	Progress      Progress           `json:"progress"`
	SceneProgress map[int]SceneState `json:"sceneProgress,omitempty"`
}

// WSCompleteMessage announces job completion with the final artifact URLs.
type WSCompleteMessage struct {
	Type    string    `json:"type"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Outputs []string  `json:"outputs"`
}

// WSErrorMessage announces job failure.
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
