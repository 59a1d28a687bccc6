package workers

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/services/ai"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/google/uuid"
)

// mockAIProvider is a mock implementation of AIProvider
type mockAIProvider struct {
	configured     bool
	transcribeFunc func(ctx context.Context, file models.AudioFile) (string, error)
	summarizeFunc  func(ctx context.Context, transcript string, prompt prompts.Prompt) (ai.SummaryResult, error)
	extractFunc    func(ctx context.Context, text string, prompt prompts.Prompt) (ai.TaskPlan, error)

	mu             sync.Mutex
	summarizeCalls int
	extractCalls   int
	extractText    string
}

var _ ai.AIProvider = (*mockAIProvider)(nil)

func (m *mockAIProvider) Configured() bool {
	return m.configured
}

func (m *mockAIProvider) Transcribe(ctx context.Context, file models.AudioFile) (string, error) {
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, file)
	}
	return "", fmt.Errorf("unexpected transcription of %s", file.Name)
}

func (m *mockAIProvider) Summarize(ctx context.Context, transcript string, prompt prompts.Prompt) (ai.SummaryResult, error) {
	m.mu.Lock()
	m.summarizeCalls++
	m.mu.Unlock()
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, transcript, prompt)
	}
	return ai.ParseSummary(`{"title":"Voice memo","abstract":"A short note."}`), nil
}

func (m *mockAIProvider) ExtractTasks(ctx context.Context, text string, prompt prompts.Prompt) (ai.TaskPlan, error) {
	m.mu.Lock()
	m.extractCalls++
	m.extractText = text
	m.mu.Unlock()
	if m.extractFunc != nil {
		return m.extractFunc(ctx, text, prompt)
	}
	return ai.FallbackPlan(text), nil
}

// mockTasks records created tasks and hands out sequential ids
type mockTasks struct {
	configured bool
	createFunc func(task todoist.NewTask) error

	mu      sync.Mutex
	created []todoist.NewTask
}

var _ TaskCreator = (*mockTasks)(nil)

func (m *mockTasks) Configured() bool {
	return m.configured
}

func (m *mockTasks) CreateTask(_ context.Context, task todoist.NewTask) (*todoist.Task, error) {
	if m.createFunc != nil {
		if err := m.createFunc(task); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, task)
	return &todoist.Task{ID: fmt.Sprintf("t%d", len(m.created)), Content: task.Content}, nil
}

func (m *mockTasks) snapshot() []todoist.NewTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]todoist.NewTask(nil), m.created...)
}

// memWorkspace is an in-memory graph
type memWorkspace struct {
	settings models.Settings

	mu    sync.Mutex
	files map[string]string
}

var _ Workspace = (*memWorkspace)(nil)

func newMemWorkspace(settings models.Settings, files map[string]string) *memWorkspace {
	return &memWorkspace{settings: settings, files: files}
}

func (w *memWorkspace) Settings() models.Settings {
	return w.settings
}

func (w *memWorkspace) ReadFile(name string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func (w *memWorkspace) WriteFile(name string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[name] = string(data)
	return nil
}

func (w *memWorkspace) Exists(name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[name]
	return ok, nil
}

func (w *memWorkspace) Remove(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(w.files, name)
	return nil
}

func (w *memWorkspace) get(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.files[name]
	return s, ok
}

func (w *memWorkspace) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// mockRunStore keeps runs in memory and records every saved state
type mockRunStore struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]models.Run
	states []models.RunState
	getErr error
}

var _ database.RunStore = (*mockRunStore)(nil)

func newMockRunStore() *mockRunStore {
	return &mockRunStore{runs: map[uuid.UUID]models.Run{}}
}

func (m *mockRunStore) Create(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *mockRunStore) Update(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return database.ErrRunNotFound
	}
	m.runs[run.ID] = *run
	m.states = append(m.states, run.State)
	return nil
}

func (m *mockRunStore) GetByID(_ context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	return &run, nil
}

func (m *mockRunStore) ListRecent(_ context.Context, _ int) ([]*models.Run, error) {
	return nil, nil
}

// mockQueue records enqueued jobs
type mockQueue struct {
	mu       sync.Mutex
	enqueued []*queue.Job
	err      error
}

var _ queue.JobQueue = (*mockQueue)(nil)

func (q *mockQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, fmt.Errorf("not implemented")
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) HealthCheck(context.Context) error { return nil }

// mockDelivery records how a message was settled
type mockDelivery struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

var _ queue.Delivery = (*mockDelivery)(nil)

func (d *mockDelivery) Ack() error {
	d.acked = true
	return nil
}

func (d *mockDelivery) Nack(requeue bool) error {
	d.nacked = true
	d.requeued = requeue
	return nil
}

func (d *mockDelivery) GetJob() *queue.Job {
	return d.job
}

type mockMappingStore struct {
	mappings []models.ProjectMapping
	err      error
}

var _ database.MappingStore = (*mockMappingStore)(nil)

func (m *mockMappingStore) List(context.Context) ([]models.ProjectMapping, error) {
	return m.mappings, m.err
}

func (m *mockMappingStore) Upsert(context.Context, models.ProjectMapping) error { return m.err }

func (m *mockMappingStore) Delete(context.Context, string) error { return m.err }
