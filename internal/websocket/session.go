package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/blob"
	"github.com/makeasinger/ttsstream/internal/job"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/makeasinger/ttsstream/pkg/response"
)

const (
	writeWait      = 5 * time.Second
	discardTimeout = 5 * time.Second
)

// Conn is the part of a websocket connection a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// JobRunner runs one job to a terminal state, reporting through emit.
type JobRunner interface {
	Run(ctx context.Context, j *model.Job, emit job.Emitter) error
}

type SessionOptions struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	OutboundBuffer    int
	// CancelJobsOnClose cancels in-flight jobs when the session ends.
	// Otherwise they finish and their remaining events are dropped.
	CancelJobsOnClose bool
	// Uploads, when set, deletes the bytes of handles the session never used.
	Uploads blob.Store
}

type State int

const (
	StateConnected State = iota
	StateClosing
)

func (s State) String() string {
	if s == StateClosing {
		return "closing"
	}
	return "connected"
}

// Session is the state of one websocket connection. It owns the connection:
// its writer goroutine is the only one writing data frames, and jobs reach
// the client only through the session's Router.
type Session struct {
	id       string
	conn     Conn
	router   *Router
	runner   JobRunner
	validate *validator.Validate
	opts     SessionOptions

	lastSeen atomic.Int64

	mu      sync.Mutex
	state   State
	uploads map[string]*model.UploadHandle

	jobCtx     context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
	closeOnce  sync.Once
}

// NewSession prepares a session for conn. Jobs it starts run under a context
// derived from parent.
func NewSession(parent context.Context, id string, conn Conn, runner JobRunner, validate *validator.Validate, opts SessionOptions) *Session {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 5 * time.Second
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = 2 * opts.HeartbeatInterval
	}
	s := &Session{
		id:       id,
		conn:     conn,
		router:   NewRouter(opts.OutboundBuffer),
		runner:   runner,
		validate: validate,
		opts:     opts,
		uploads:  make(map[string]*model.UploadHandle),
	}
	s.jobCtx, s.cancelJobs = context.WithCancel(parent)
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serve runs the session until the connection ends.
func (s *Session) Serve() {
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		s.touch()
		if err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.writeTimeout())); err != nil {
			log.Printf("Session %s: failed to answer ping: %v", s.id, err)
		}
		return nil
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	log.Printf("Session %s: connected", s.id)
	s.router.Send(model.WSInfoMessage{
		Type:    model.WSMessageTypeInfo,
		Message: "Connected with session ID: " + s.id,
	})

	s.readLoop()
	s.Shutdown()
	<-writerDone
	log.Printf("Session %s: closed", s.id)
}

// Shutdown moves the session to closing: no new jobs are accepted, pending
// outbound messages are dropped and the connection is closed.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		pending := s.uploads
		s.uploads = nil
		s.mu.Unlock()

		s.router.Close()
		if s.opts.CancelJobsOnClose {
			s.cancelJobs()
		} else {
			go func() {
				s.jobs.Wait()
				s.cancelJobs()
			}()
		}
		_ = s.conn.Close()

		if len(pending) > 0 {
			log.Printf("Session %s: discarding %d unused upload handles", s.id, len(pending))
			s.discardUploads(pending)
		}
	})
}

// discardUploads removes whatever bytes arrived for handles no job consumed.
func (s *Session) discardUploads(handles map[string]*model.UploadHandle) {
	if s.opts.Uploads == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	for _, h := range handles {
		if err := s.opts.Uploads.Delete(ctx, h.StoragePath); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Printf("Session %s: failed to remove upload %s: %v", s.id, h.StoragePath, err)
		}
	}
}

// Wait blocks until every job started by the session has finished.
func (s *Session) Wait() {
	s.jobs.Wait()
}

// touch records client activity and pushes the read deadline forward, so a
// silent peer fails the blocked read even if the writer is stuck.
func (s *Session) touch() {
	now := time.Now()
	s.lastSeen.Store(now.UnixNano())
	_ = s.conn.SetReadDeadline(now.Add(s.opts.ClientTimeout))
}

// writeTimeout bounds one frame write. A peer that cannot take a frame
// within the client timeout is treated as gone.
func (s *Session) writeTimeout() time.Duration {
	return min(writeWait, s.opts.ClientTimeout)
}

func (s *Session) sinceLastSeen() time.Duration {
	return time.Since(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.router.Messages():
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Session %s: failed to marshal message: %v", s.id, err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Session %s: write failed: %v", s.id, err)
				s.Shutdown()
				return
			}

		case <-ticker.C:
			if s.sinceLastSeen() > s.opts.ClientTimeout {
				log.Printf("Session %s: heartbeat timed out, disconnecting", s.id)
				s.Shutdown()
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout())); err != nil {
				s.Shutdown()
				return
			}

		case <-s.router.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (s *Session) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Session %s: websocket error: %v", s.id, err)
			}
			return
		}
		s.touch()

		if messageType != websocket.TextMessage {
			s.sendError("", "", response.CodeValidationError, "Binary messages are not supported; upload files over HTTP")
			continue
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	var msg model.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		s.sendError("", "", response.CodeProtocolError, "Invalid message format")
		return
	}

	switch msg.Type {
	case model.WSMessageTypePing:
		s.router.Send(model.WSMessage{Type: model.WSMessageTypePong})
	case model.WSMessageTypeAnnounceUpload:
		var m model.AnnounceUploadMessage
		if s.decode(data, &m, "") {
			s.handleAnnounceUpload(&m)
		}
	case model.WSMessageTypeSubmitTextJob:
		var m model.SubmitTextJobMessage
		if s.decode(data, &m, "") {
			s.handleSubmitTextJob(&m)
		}
	case model.WSMessageTypeSubmitFileJob:
		var m model.SubmitFileJobMessage
		if s.decode(data, &m, peekFileID(data)) {
			s.handleSubmitFileJob(&m)
		}
	default:
		s.sendError("", "", response.CodeProtocolError, "Unknown message type: "+msg.Type)
	}
}

// decode unmarshals and validates an inbound message, reporting failures to
// the client. fileID tags the error when the message names an upload.
func (s *Session) decode(data []byte, v any, fileID string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError("", fileID, response.CodeValidationError, "Invalid message fields")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.sendError("", fileID, response.CodeValidationError, model.ValidationMessage(err))
		return false
	}
	return true
}

func peekFileID(data []byte) string {
	var m struct {
		FileID string `json:"fileId"`
	}
	_ = json.Unmarshal(data, &m)
	return m.FileID
}

func (s *Session) handleAnnounceUpload(m *model.AnnounceUploadMessage) {
	name := artifact.SafeName(m.Filename)
	if name == "" {
		s.sendError("", "", response.CodeValidationError, "Invalid filename")
		return
	}

	fileID := uuid.New().String()
	handle := &model.UploadHandle{
		FileID:           fileID,
		OriginalFilename: name,
		StoragePath:      model.StorageKey(fileID, name),
		CreatedAt:        time.Now(),
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.uploads[fileID] = handle
	s.mu.Unlock()

	log.Printf("Session %s: upload %s announced for %s", s.id, fileID, name)
	s.router.Send(model.WSUploadReadyMessage{
		Type:     model.WSMessageTypeUploadReady,
		FileID:   fileID,
		Filename: name,
	})
}

func (s *Session) handleSubmitTextJob(m *model.SubmitTextJobMessage) {
	jobID := uuid.New().String()
	name := "output_" + jobID + ".wav"
	if m.OutputName != "" {
		name = artifact.SafeName(m.OutputName)
		if name == "" {
			s.sendError("", "", response.CodeValidationError, "Invalid outputName")
			return
		}
		if !strings.HasSuffix(strings.ToLower(name), ".wav") {
			name += ".wav"
		}
	}

	j := model.NewJob(jobID, s.id, model.JobSource{Kind: model.SourceInlineText, Text: m.Text}, name, m.Language)
	s.startJob(j, model.WSJobAcceptedMessage{Type: model.WSMessageTypeJobAccepted, JobID: jobID})
}

func (s *Session) handleSubmitFileJob(m *model.SubmitFileJobMessage) {
	s.mu.Lock()
	handle, ok := s.uploads[m.FileID]
	if !ok {
		s.mu.Unlock()
		s.sendError("", m.FileID, response.CodeValidationError, "Unknown or already used fileId")
		return
	}
	if handle.OriginalFilename != artifact.SafeName(m.Filename) {
		s.mu.Unlock()
		s.sendError("", m.FileID, response.CodeValidationError, "Filename does not match the announced upload")
		return
	}
	delete(s.uploads, m.FileID)
	s.mu.Unlock()

	jobID := uuid.New().String()
	j := model.NewJob(jobID, s.id, model.JobSource{Kind: model.SourceUploadedFile, Upload: handle}, handle.OriginalFilename+".wav", m.Language)
	s.startJob(j, model.WSJobAcceptedMessage{
		Type:           model.WSMessageTypeJobAccepted,
		JobID:          jobID,
		SourceFileID:   handle.FileID,
		SourceFilename: handle.OriginalFilename,
	})
}

// startJob acknowledges the job and then runs it in its own goroutine, so
// the acknowledgement always precedes the job's events.
func (s *Session) startJob(j *model.Job, accepted model.WSJobAcceptedMessage) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		log.Printf("Session %s: closing, job rejected", s.id)
		return
	}
	s.jobs.Add(1)
	s.mu.Unlock()

	s.router.Send(accepted)
	log.Printf("Session %s: job %s accepted", s.id, j.ID)

	go func() {
		defer s.jobs.Done()
		_ = s.runner.Run(s.jobCtx, j, s.router)
	}()
}

func (s *Session) sendError(jobID, fileID, code, message string) {
	s.router.Send(model.WSErrorMessage{
		Type:    model.WSMessageTypeError,
		JobID:   jobID,
		FileID:  fileID,
		Code:    code,
		Message: message,
	})
}
