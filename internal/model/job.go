package model

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle stage of a synthesis job.
type JobStatus string

const (
	JobStatusCreated       JobStatus = "created"
	JobStatusChunking      JobStatus = "chunking"
	JobStatusSynthesizing  JobStatus = "synthesizing"
	JobStatusConcatenating JobStatus = "concatenating"
	JobStatusComplete      JobStatus = "complete"
	JobStatusFailed        JobStatus = "failed"
)

var statusRank = map[JobStatus]int{
	JobStatusCreated:       0,
	JobStatusChunking:      1,
	JobStatusSynthesizing:  2,
	JobStatusConcatenating: 3,
	JobStatusComplete:      4,
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransition reports whether from -> to is a legal move: one step forward
// along the pipeline, or to failed from any non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// SourceKind tells whether the job text was sent inline or uploaded.
type SourceKind string

const (
	SourceInlineText   SourceKind = "inline_text"
	SourceUploadedFile SourceKind = "uploaded_file"
)

// JobSource is the origin of a job's text. Exactly one of Text or Upload is set.
type JobSource struct {
	Kind   SourceKind
	Text   string
	Upload *UploadHandle
}

// Chunk is one ordered segment of the job's text.
type Chunk struct {
	Index             int    `json:"index"`
	Text              string `json:"text"`
	AudioFragmentPath string `json:"audioFragmentPath,omitempty"`
}

// Job is owned by its orchestrator for its whole lifetime.
type Job struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Source       JobSource  `json:"-"`
	Status       JobStatus  `json:"status"`
	Chunks       []Chunk    `json:"-"`
	Language     string     `json:"language,omitempty"`
	ArtifactName string     `json:"artifactName"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewJob creates a job in the created state.
func NewJob(id, sessionID string, source JobSource, artifactName, language string) *Job {
	return &Job{
		ID:           id,
		SessionID:    sessionID,
		Source:       source,
		Status:       JobStatusCreated,
		Language:     language,
		ArtifactName: artifactName,
		CreatedAt:    time.Now(),
	}
}

// Transition moves the job to the next status, rejecting illegal moves.
func (j *Job) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("illegal job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	if to.Terminal() {
		now := time.Now()
		j.CompletedAt = &now
	}
	return nil
}

// JobRecord is the externally visible snapshot of a job, as stored for
// status lookups.
type JobRecord struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Status       JobStatus  `json:"status"`
	Fraction     float64    `json:"fraction"`
	Message      string     `json:"message,omitempty"`
	ChunkCount   int        `json:"chunkCount"`
	ArtifactName string     `json:"artifactName,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
