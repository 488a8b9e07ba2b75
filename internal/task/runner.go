package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"speechscan/internal/transcribe"
	"speechscan/internal/words"
)

// Status is the lifecycle state of a background transcription task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrBusy is returned by Submit while another task is still running.
	// One task per runner mirrors the one-submission-at-a-time rule of
	// the desktop frontend.
	ErrBusy = errors.New("transcription already in progress")

	// ErrNotFound is returned for unknown task IDs.
	ErrNotFound = errors.New("task not found")

	// ErrFinished is returned by Cancel when the task already reached a
	// terminal state, so there is nothing left to cancel.
	ErrFinished = errors.New("task already finished")
)

// Task is a point-in-time snapshot of a transcription task.
type Task struct {
	ID         uuid.UUID         `json:"id"`
	Status     Status            `json:"status"`
	AudioPath  string            `json:"-"`
	Provider   string            `json:"provider,omitempty"`
	Words      []words.WordCount `json:"words,omitempty"`
	ErrorTag   string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// Completion is the single terminal notification delivered for a task:
// either the ranked word table or a classified error, never both and
// never more than once.
type Completion struct {
	ID    uuid.UUID
	Words []words.WordCount
	Err   error
}

// NewProviderFunc builds a transcription provider for a caller-supplied key.
type NewProviderFunc func(apiKey string) (transcribe.Provider, error)

type runningTask struct {
	snapshot Task
	cancel   context.CancelFunc
}

// Runner executes the transcribe-then-count pipeline on a background
// goroutine, one task at a time, and keeps finished task records in
// memory for the HTTP layer to read back.
type Runner struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*runningTask
	running     bool
	newProvider NewProviderFunc
}

// NewRunner creates a Runner. A nil newProvider falls back to the
// environment-driven provider factory.
func NewRunner(newProvider NewProviderFunc) *Runner {
	if newProvider == nil {
		newProvider = transcribe.CreateProvider
	}
	return &Runner{
		tasks:       make(map[uuid.UUID]*runningTask),
		newProvider: newProvider,
	}
}

// Submit starts the pipeline for an audio file and returns the task ID
// immediately. onDone, if non-nil, is invoked exactly once with the
// terminal outcome. Returns ErrBusy while a previous task is still
// running.
func (r *Runner) Submit(audioPath, apiKey string, onDone func(Completion)) (uuid.UUID, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return uuid.Nil, ErrBusy
	}
	r.running = true

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	t := &runningTask{
		snapshot: Task{
			ID:        id,
			Status:    StatusQueued,
			AudioPath: audioPath,
			CreatedAt: time.Now(),
		},
		cancel: cancel,
	}
	r.tasks[id] = t
	r.mu.Unlock()

	go r.run(ctx, id, audioPath, apiKey, onDone)
	return id, nil
}

// Get returns a snapshot of a task.
func (r *Runner) Get(id uuid.UUID) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot, true
}

// Cancel signals a running task to stop. The provider observes the
// cancellation between poll iterations. Tasks that already completed or
// failed report ErrFinished rather than pretending to cancel.
func (r *Runner) Cancel(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.snapshot.Status == StatusCompleted || t.snapshot.Status == StatusFailed {
		return ErrFinished
	}
	t.cancel()
	return nil
}

func (r *Runner) run(ctx context.Context, id uuid.UUID, audioPath, apiKey string, onDone func(Completion)) {
	// Every exit path ends in deliver, which frees the runner's slot
	// exactly once before notifying. Freeing it anywhere else would let
	// a resubmission from the callback overlap a later reset.
	var once sync.Once
	deliver := func(c Completion) {
		once.Do(func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			if onDone != nil {
				onDone(c)
			}
		})
	}

	fail := func(err error) {
		classified := transcribe.Classify(err)
		log.Printf("[Task] %s failed: %v", id, err)
		r.update(id, func(t *Task) {
			t.Status = StatusFailed
			t.ErrorTag = transcribe.ErrorTag(classified)
			t.FinishedAt = time.Now()
		})
		deliver(Completion{ID: id, Err: classified})
	}

	provider, err := r.newProvider(apiKey)
	if err != nil {
		fail(fmt.Errorf("failed to create provider: %v: %w", err, transcribe.ErrTranscriptionFailed))
		return
	}
	r.update(id, func(t *Task) {
		t.Status = StatusProcessing
		t.Provider = provider.Name()
	})

	audio, err := os.Open(audioPath)
	if err != nil {
		fail(fmt.Errorf("failed to open audio file: %v: %w", err, transcribe.ErrTranscriptionFailed))
		return
	}
	defer audio.Close()

	log.Printf("[Task] %s transcribing %s via %s", id, audioPath, provider.Name())
	result, err := provider.Transcribe(ctx, audio)
	if err != nil {
		fail(err)
		return
	}

	table := words.Count(result.Transcript)
	log.Printf("[Task] %s completed: %d tokens, %d distinct words",
		id, len(words.Normalize(result.Transcript)), len(table))
	r.update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Words = table
		t.FinishedAt = time.Now()
	})
	deliver(Completion{ID: id, Words: table})
}

func (r *Runner) update(id uuid.UUID, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		fn(&t.snapshot)
	}
}
