package common

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobMessage asks a worker to blur one image file. RunID names the
// coordinator run that queued it; ImageID is only unique within that run.
type JobMessage struct {
	RunID      string `json:"run_id"`
	ImageID    int    `json:"image_id"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	KernelSize int    `json:"kernel_size"`
	Threads    int    `json:"threads"`
}

// ResultMessage reports the outcome of one JobMessage. Error is empty on
// success.
type ResultMessage struct {
	RunID       string  `json:"run_id"`
	ImageID     int     `json:"image_id"`
	WorkerID    string  `json:"worker_id"`
	OutputPath  string  `json:"output_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Bands       int     `json:"bands"`
	ProcessTime float64 `json:"process_time"`
	Error       string  `json:"error,omitempty"`
}

// Failed reports whether the job did not produce an output image.
func (r *ResultMessage) Failed() bool {
	return r.Error != ""
}

// ImageInfo is stored by the coordinator when it queues an image.
type ImageInfo struct {
	RunID      string    `json:"run_id"`
	ID         int       `json:"id"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	KernelSize int       `json:"kernel_size"`
	Threads    int       `json:"threads"`
	StartTime  time.Time `json:"start_time"`
}
