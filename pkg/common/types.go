package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// BLUR_RADIUS is the half-width of the 5x5 averaging window.
	BLUR_RADIUS = 2

	DEFAULT_WORKERS = 4
	DEFAULT_QUALITY = 90
)

const (
	JobTypeImage    = "image"
	JobTypeComplete = "complete"
)

var (
	ErrDecode          = errors.New("decode failed")
	ErrEncode          = errors.New("encode failed")
	ErrProcess         = errors.New("process failed")
	ErrNoInput         = errors.New("no images loaded")
	ErrInvalidGeometry = errors.New("invalid image geometry")
)

// ImageTask is one decoded image travelling through the pipeline.
// Pix is owned by whichever stage currently holds the task.
type ImageTask struct {
	ID       uuid.UUID `msgpack:"id"`
	Index    int       `msgpack:"index"`
	Source   string    `msgpack:"source"`
	Width    int       `msgpack:"width"`
	Height   int       `msgpack:"height"`
	Channels int       `msgpack:"channels"`
	Pix      []byte    `msgpack:"pix"`
}

// NewImageTask wraps a decoded buffer and assigns it a fresh ID.
func NewImageTask(index int, source string, pix []byte, width, height, channels int) *ImageTask {
	return &ImageTask{
		ID:       uuid.New(),
		Index:    index,
		Source:   source,
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      pix,
	}
}

// Validate checks the geometry invariants of the task.
func (t *ImageTask) Validate() error {
	if t.Width < 1 || t.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, t.Width, t.Height)
	}
	switch t.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: %d channels", ErrInvalidGeometry, t.Channels)
	}
	if want := t.Width * t.Height * t.Channels; len(t.Pix) != want {
		return fmt.Errorf("%w: buffer has %d bytes, want %d", ErrInvalidGeometry, len(t.Pix), want)
	}
	return nil
}

// ResultTask is a blurred image ready to encode. A worker that cannot blur
// a job still answers with a ResultTask whose Err is set and Pix is empty,
// so a receiver counting results is never left waiting.
type ResultTask struct {
	ImageTask   `msgpack:",inline"`
	WorkerID    string        `msgpack:"worker_id"`
	ProcessTime time.Duration `msgpack:"process_time"`
	Err         string        `msgpack:"err,omitempty"`
}

// FailedResult reports that task could not be processed.
func FailedResult(task *ImageTask, workerID string, err error) *ResultTask {
	res := &ResultTask{ImageTask: *task, WorkerID: workerID, Err: err.Error()}
	res.Pix = nil
	return res
}

func (r *ResultTask) Failed() bool {
	return r.Err != ""
}

// JobMessage is what travels on the job queue: either an image or the
// completion sentinel telling one worker to stop.
type JobMessage struct {
	Type string     `msgpack:"type"`
	Task *ImageTask `msgpack:"task,omitempty"`
}

func ImageJob(task *ImageTask) *JobMessage {
	return &JobMessage{Type: JobTypeImage, Task: task}
}

func CompleteJob() *JobMessage {
	return &JobMessage{Type: JobTypeComplete}
}

// Failure records a per-item error that did not stop the run.
type Failure struct {
	Stage string `json:"stage"`
	Path  string `json:"path"`
	Err   error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Stage string `json:"stage"`
		Path  string `json:"path"`
		Error string `json:"error"`
	}{f.Stage, f.Path, msg})
}
