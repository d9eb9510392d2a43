// Package job runs one synthesis job from source text to merged artifact.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/blob"
	"github.com/makeasinger/ttsstream/internal/chunker"
	"github.com/makeasinger/ttsstream/internal/metrics"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/sourcegraph/conc/pool"
)

// MaxUploadBytes caps how much of an uploaded source file is read.
const MaxUploadBytes = 10 << 20

const (
	synthesisShare = 0.9
	concatFraction = 0.95
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text, dest, language string) (string, error)
}

type Concatenator interface {
	Concatenate(ctx context.Context, fragments []string, dest string) (string, error)
}

// Recorder persists job snapshots for status lookups.
type Recorder interface {
	Save(ctx context.Context, rec *model.JobRecord) error
}

// ExpiryScheduler arranges for a completed job's artifact to be removed later.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, jobID string) error
}

type Options struct {
	Synthesizer  Synthesizer
	Concatenator Concatenator
	Artifacts    *artifact.Store
	Blobs        blob.Store
	Recorder     Recorder
	Expiry       ExpiryScheduler
	Metrics      *metrics.Metrics

	// Parallelism above 1 synthesizes that many chunks at once.
	Parallelism int
	// Timeout bounds one job's wall time. Zero disables it.
	Timeout time.Duration
}

// Orchestrator drives jobs through chunking, synthesis and concatenation.
// It is safe for concurrent use; each Run owns its job exclusively.
type Orchestrator struct {
	opts Options
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Orchestrator{opts: opts}
}

// Run processes job to a terminal state, sending its events to emit. Every
// failure emits exactly one error event and removes the job directory; the
// returned error is the cause.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, emit Emitter) error {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	r := &run{Orchestrator: o, job: job, emit: emit, started: time.Now()}
	o.opts.Metrics.JobStarted(ctx)
	log.Printf("Job %s: started for session %s", job.ID, job.SessionID)
	r.record("Job created")

	if err := r.execute(ctx); err != nil {
		r.fail(err)
		return err
	}

	o.opts.Metrics.JobCompleted(context.Background(), time.Since(r.started))
	log.Printf("Job %s: complete, artifact %s", job.ID, job.ArtifactName)
	return nil
}

// run is the state of one Run call.
type run struct {
	*Orchestrator
	job     *model.Job
	emit    Emitter
	dir     *artifact.JobDir
	started time.Time

	mu       sync.Mutex
	fraction float64
	message  string
}

func (r *run) execute(ctx context.Context) error {
	if err := r.transition(model.JobStatusChunking); err != nil {
		return err
	}
	text, err := r.sourceText(ctx)
	if err != nil {
		return err
	}
	segments, err := chunker.Split(text)
	if err != nil {
		return err
	}
	r.job.Chunks = make([]model.Chunk, len(segments))
	for i, s := range segments {
		r.job.Chunks[i] = model.Chunk{Index: i, Text: s}
	}
	log.Printf("Job %s: starting conversion for %d chunks", r.job.ID, len(segments))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.transition(model.JobStatusSynthesizing); err != nil {
		return err
	}
	if r.dir, err = r.opts.Artifacts.Allocate(r.job.ID); err != nil {
		return err
	}
	if r.opts.Parallelism > 1 && len(r.job.Chunks) > 1 {
		err = r.synthesizeParallel(ctx)
	} else {
		err = r.synthesizeSequential(ctx)
	}
	if err != nil {
		return err
	}

	if err := r.transition(model.JobStatusConcatenating); err != nil {
		return err
	}
	log.Printf("Job %s: all chunks processed, concatenating", r.job.ID)
	r.progress(concatFraction, "Combining audio pieces...")

	fragments := make([]string, len(r.job.Chunks))
	for i, c := range r.job.Chunks {
		fragments[i] = c.AudioFragmentPath
	}
	if _, err := r.opts.Concatenator.Concatenate(ctx, fragments, r.dir.ArtifactPath(r.job.ArtifactName)); err != nil {
		return err
	}

	if err := r.transition(model.JobStatusComplete); err != nil {
		return err
	}
	// A leftover fragment does not invalidate the artifact.
	_ = r.dir.RemoveFragments(fragments)
	for i := range r.job.Chunks {
		r.job.Chunks[i].AudioFragmentPath = ""
	}

	r.emit.Emit(Event{
		Kind:         EventComplete,
		JobID:        r.job.ID,
		ArtifactName: r.job.ArtifactName,
		Reference:    artifact.RetrievalReference(r.job.ID, r.job.ArtifactName),
	})
	r.progress(1.0, "Conversion complete")

	if r.opts.Expiry != nil {
		if err := r.opts.Expiry.ScheduleExpiry(context.Background(), r.job.ID); err != nil {
			log.Printf("Job %s: failed to schedule artifact expiry: %v", r.job.ID, err)
		}
	}
	return nil
}

// sourceText returns inline text, or reads and then discards the upload.
func (r *run) sourceText(ctx context.Context) (string, error) {
	src := r.job.Source
	if src.Kind != model.SourceUploadedFile {
		return src.Text, nil
	}
	if src.Upload == nil || r.opts.Blobs == nil {
		return "", &artifact.ResourceError{Op: "resolve upload", Path: r.job.ID, Err: blob.ErrNotFound}
	}

	key := src.Upload.StoragePath
	rc, err := r.opts.Blobs.Open(ctx, key)
	if err != nil {
		return "", &artifact.ResourceError{Op: "open upload", Path: key, Err: err}
	}
	data, err := io.ReadAll(io.LimitReader(rc, MaxUploadBytes+1))
	rc.Close()
	if err != nil {
		return "", &artifact.ResourceError{Op: "read upload", Path: key, Err: err}
	}
	if len(data) > MaxUploadBytes {
		return "", &artifact.ResourceError{Op: "read upload", Path: key, Err: errors.New("file exceeds size limit")}
	}

	if err := r.opts.Blobs.Delete(context.Background(), key); err != nil {
		log.Printf("Job %s: failed to remove consumed upload %s: %v", r.job.ID, key, err)
	}
	return string(data), nil
}

func (r *run) synthesizeSequential(ctx context.Context) error {
	n := len(r.job.Chunks)
	for i := range r.job.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.synthesizeChunk(ctx, i); err != nil {
			return err
		}
		r.progress(synthesisShare*float64(i+1)/float64(n), fmt.Sprintf("Converting chunk %d of %d", i+1, n))
	}
	return nil
}

// synthesizeParallel runs up to Parallelism chunks at once. Fragments are
// stored by index so the merge order is unaffected by completion order.
func (r *run) synthesizeParallel(ctx context.Context) error {
	n := len(r.job.Chunks)
	p := pool.New().
		WithMaxGoroutines(r.opts.Parallelism).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	var done int
	var doneMu sync.Mutex
	for i := range r.job.Chunks {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.synthesizeChunk(ctx, i); err != nil {
				return err
			}
			doneMu.Lock()
			done++
			r.progress(synthesisShare*float64(done)/float64(n), fmt.Sprintf("Converting chunk %d of %d", done, n))
			doneMu.Unlock()
			return nil
		})
	}
	return p.Wait()
}

func (r *run) synthesizeChunk(ctx context.Context, i int) error {
	chunk := &r.job.Chunks[i]
	start := time.Now()
	path, err := r.opts.Synthesizer.Synthesize(ctx, chunk.Text, r.dir.FragmentPath(i), r.job.Language)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", i+1, err)
	}
	r.opts.Metrics.ObserveSynthesis(ctx, time.Since(start))
	chunk.AudioFragmentPath = path
	return nil
}

// progress emits a progress event. Fractions never go backwards and stay
// within [0,1].
func (r *run) progress(fraction float64, message string) {
	r.mu.Lock()
	if fraction > 1 {
		fraction = 1
	}
	if fraction < r.fraction {
		fraction = r.fraction
	}
	r.fraction = fraction
	r.message = message
	r.mu.Unlock()

	r.emit.Emit(Event{Kind: EventProgress, JobID: r.job.ID, Fraction: fraction, Message: message})
	r.record("")
}

func (r *run) transition(to model.JobStatus) error {
	if err := r.job.Transition(to); err != nil {
		return err
	}
	r.record("")
	return nil
}

func (r *run) fail(cause error) {
	code := ErrorCode(cause)
	log.Printf("Job %s: failed (%s): %v", r.job.ID, code, cause)

	if r.dir != nil {
		if err := r.opts.Artifacts.Remove(r.job.ID); err != nil {
			log.Printf("Job %s: failed to remove job directory: %v", r.job.ID, err)
		}
	}
	for i := range r.job.Chunks {
		r.job.Chunks[i].AudioFragmentPath = ""
	}
	if !r.job.Status.Terminal() {
		_ = r.job.Transition(model.JobStatusFailed)
	}

	msg := errorMessage(cause)
	if !r.emit.Emit(Event{Kind: EventError, JobID: r.job.ID, Code: code, Message: msg}) {
		log.Printf("Job %s: session gone, error event discarded", r.job.ID)
	}
	r.recordError(msg)
	r.opts.Metrics.JobFailed(context.Background(), code, time.Since(r.started))
}

func (r *run) snapshot() *model.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.JobRecord{
		ID:           r.job.ID,
		SessionID:    r.job.SessionID,
		Status:       r.job.Status,
		Fraction:     r.fraction,
		Message:      r.message,
		ChunkCount:   len(r.job.Chunks),
		ArtifactName: r.job.ArtifactName,
		CreatedAt:    r.job.CreatedAt,
		CompletedAt:  r.job.CompletedAt,
	}
}

func (r *run) record(message string) {
	if r.opts.Recorder == nil {
		return
	}
	rec := r.snapshot()
	if message != "" {
		rec.Message = message
	}
	r.save(rec)
}

func (r *run) recordError(msg string) {
	if r.opts.Recorder == nil {
		return
	}
	rec := r.snapshot()
	rec.Error = &msg
	r.save(rec)
}

func (r *run) save(rec *model.JobRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.opts.Recorder.Save(ctx, rec); err != nil {
		log.Printf("Job %s: failed to save status: %v", r.job.ID, err)
	}
}
