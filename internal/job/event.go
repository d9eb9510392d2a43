package job

// EventKind tags what an Event reports.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is one asynchronous output of a running job, in emission order.
type Event struct {
	Kind     EventKind
	JobID    string
	Fraction float64
	Message  string
	Code     string

	ArtifactName string
	Reference    string
}

// Emitter receives a job's events. Emit reports false when the event was
// dropped because nobody is listening any more.
type Emitter interface {
	Emit(Event) bool
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) bool

func (f EmitterFunc) Emit(e Event) bool { return f(e) }
