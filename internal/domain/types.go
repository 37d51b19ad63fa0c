package domain

// Status is the terminal state recorded for one Job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Job is one file queued for transcription.
type Job struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

// Outcome is the recorded result of processing one Job.
type Outcome struct {
	Path       string `json:"file_path"`
	Status     Status `json:"status"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error_msg,omitempty"`
}

// Succeeded builds a success Outcome for path.
func Succeeded(path, transcript string) Outcome {
	return Outcome{Path: path, Status: StatusSuccess, Transcript: transcript}
}

// Failed builds a failed Outcome for path.
func Failed(path, message string) Outcome {
	return Outcome{Path: path, Status: StatusFailed, Error: message}
}

// Valid reports whether the status matches exactly one populated field.
func (o Outcome) Valid() bool {
	if o.Path == "" {
		return false
	}
	switch o.Status {
	case StatusSuccess:
		return o.Transcript != "" && o.Error == ""
	case StatusFailed:
		return o.Error != "" && o.Transcript == ""
	default:
		return false
	}
}

// BatchRun is the read-only configuration of one orchestrator invocation.
type BatchRun struct {
	ID             string   `json:"id"`
	Root           string   `json:"root"`
	Extensions     []string `json:"extensions"`
	Recursive      bool     `json:"recursive"`
	MaxWorkers     int      `json:"maxWorkers"`
	FlushBatchSize int      `json:"flushBatchSize"`
	ReportPath     string   `json:"reportPath"`
	Resume         bool     `json:"resume"`
}
