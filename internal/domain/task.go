package domain

import (
	"errors"
	"time"
)

type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// Task types run by the workers.
const (
	TaskDownloadLeftLists = "download-left-lists"
	TaskUpdateAlgorithms  = "update-algorithms"
)

func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCanceled
}

// Task is a background operation started from the shell, such as merging
// left lists into a local file.
type Task struct {
	ID        string
	Type      string
	State     TaskState
	Progress  float64
	CreatedAt time.Time
	UpdatedAt time.Time

	ParamsJSON   []byte
	ResultJSON   []byte
	ErrorCode    string
	ErrorMessage string
}

var ErrInvalidTransition = errors.New("invalid task state transition")

func CanTransition(from, to TaskState) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskQueued:
		return to == TaskRunning || to == TaskCanceled || to == TaskFailed
	case TaskRunning:
		return to == TaskCompleted || to == TaskCanceled || to == TaskFailed
	default:
		return false
	}
}
