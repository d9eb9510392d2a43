package model

// WebSocket message types
const (
	// Client -> server
	WSMessageTypeAnnounceUpload = "announce-upload"
	WSMessageTypeSubmitTextJob  = "submit-text-job"
	WSMessageTypeSubmitFileJob  = "submit-file-job"
	WSMessageTypePing           = "ping"

	// Server -> client
	WSMessageTypeUploadReady = "upload-ready"
	WSMessageTypeJobAccepted = "job-accepted"
	WSMessageTypeProgress    = "progress"
	WSMessageTypeComplete    = "complete"
	WSMessageTypeError       = "error"
	WSMessageTypeInfo        = "info"
	WSMessageTypePong        = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// AnnounceUploadMessage registers the intent to upload a file.
type AnnounceUploadMessage struct {
	Type     string `json:"type"`
	Filename string `json:"filename" validate:"required,max=255"`
}

// SubmitTextJobMessage starts a job from inline text.
type SubmitTextJobMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text" validate:"required"`
	Language   string `json:"language,omitempty" validate:"omitempty,voice"`
	OutputName string `json:"outputName,omitempty" validate:"omitempty,max=200"`
}

// SubmitFileJobMessage starts a job from a previously announced upload.
type SubmitFileJobMessage struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId" validate:"required,uuid"`
	Filename string `json:"filename" validate:"required,max=255"`
	Language string `json:"language,omitempty" validate:"omitempty,voice"`
}

// WSUploadReadyMessage hands back the reference for an announced upload.
type WSUploadReadyMessage struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

// WSJobAcceptedMessage acknowledges a submitted job.
type WSJobAcceptedMessage struct {
	Type           string `json:"type"`
	JobID          string `json:"jobId"`
	SourceFileID   string `json:"sourceFileId,omitempty"`
	SourceFilename string `json:"sourceFilename,omitempty"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string  `json:"type"`
	JobID    string  `json:"jobId"`
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type               string `json:"type"`
	JobID              string `json:"jobId"`
	ArtifactName       string `json:"artifactName"`
	RetrievalReference string `json:"retrievalReference"`
}

// WSErrorMessage represents a recoverable failure. JobID and FileID are
// omitted when the failure is not tied to a job or upload.
type WSErrorMessage struct {
	Type    string `json:"type"`
	JobID   string `json:"jobId,omitempty"`
	FileID  string `json:"fileId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSInfoMessage carries informational text such as the session greeting.
type WSInfoMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
