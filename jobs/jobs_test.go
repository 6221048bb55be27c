package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/libris-hub/libris/internal/jobs"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *recordingEnqueuer) Close() error { return nil }

func TestEnqueueWelcome(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewClientWith(enq, nil)

	require.NoError(t, client.EnqueueWelcome(context.Background(), "ada@example.com", "ada"))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeWelcomeEmail, enq.tasks[0].Type())

	var payload WelcomeEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, WelcomeEmailPayload{To: "ada@example.com", Username: "ada"}, payload)

	assert.Error(t, client.EnqueueWelcome(context.Background(), "", "ghost"))
}

func TestWelcomeMailJob(t *testing.T) {
	sender := &recordingSender{}
	job := NewWelcomeMailJob(sender, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{To: "ada@example.com", Username: "ada"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "Hi ada,")
}

func TestWelcomeMailJobErrors(t *testing.T) {
	job := NewWelcomeMailJob(&recordingSender{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeWelcomeEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	boom := errors.New("relay refused")
	job = NewWelcomeMailJob(&recordingSender{err: boom}, nil, nil)
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{To: "ada@example.com", Username: "ada"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{"no inspector", nil, http.StatusOK, `"pending":0`},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Failed: 1}}, http.StatusOK, `"pending":3`},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, "queue unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tt.inspector, nil).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)
}
