package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail is the task type for the post-registration welcome e-mail.
	TaskTypeWelcomeEmail = "mail:welcome"
)

// WelcomeEmailPayload describes the recipient of a welcome e-mail.
type WelcomeEmailPayload struct {
	To       string `json:"to"`
	Username string `json:"username"`
}

// NewWelcomeEmailTask constructs an Asynq task with a unique id.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, fmt.Errorf("jobs: welcome email without recipient")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data,
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
	), nil
}
