package domain

import "time"

type TrainingJob struct {
	JobID       string
	UseCaseID   string
	Name        string
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Message     string
}

type TrainingLogEvent struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"message" yaml:"message"`
}

// TrainingLogPage is one slice of a job's log stream. NextToken resumes
// after the last event returned.
type TrainingLogPage struct {
	Events    []TrainingLogEvent
	NextToken string
}
