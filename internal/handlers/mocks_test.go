package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/services/ai"
	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/benvon/voiceflow/internal/workers"
	"github.com/google/uuid"
)

// staticSettings returns fixed settings
type staticSettings models.Settings

func (s staticSettings) Settings() models.Settings {
	return models.Settings(s)
}

// mockAIProvider transcribes every file to a fixed transcript
type mockAIProvider struct {
	configured bool
	transcript string
}

var _ ai.AIProvider = (*mockAIProvider)(nil)

func (m *mockAIProvider) Configured() bool {
	return m.configured
}

func (m *mockAIProvider) Transcribe(context.Context, models.AudioFile) (string, error) {
	return m.transcript, nil
}

func (m *mockAIProvider) Summarize(context.Context, string, prompts.Prompt) (ai.SummaryResult, error) {
	return ai.ParseSummary(`{"title":"Voice memo","abstract":"A short note."}`), nil
}

func (m *mockAIProvider) ExtractTasks(_ context.Context, text string, _ prompts.Prompt) (ai.TaskPlan, error) {
	return ai.FallbackPlan(text), nil
}

// mockTasks hands out sequential task ids
type mockTasks struct {
	mu      sync.Mutex
	created []todoist.NewTask
}

var _ workers.TaskCreator = (*mockTasks)(nil)

func (m *mockTasks) Configured() bool {
	return true
}

func (m *mockTasks) CreateTask(_ context.Context, task todoist.NewTask) (*todoist.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, task)
	return &todoist.Task{ID: fmt.Sprintf("t%d", len(m.created)), Content: task.Content}, nil
}

// mockRunStore keeps runs in memory
type mockRunStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]models.Run
	recent    []*models.Run
	lastLimit int
	createErr error
	getErr    error
}

var _ database.RunStore = (*mockRunStore)(nil)

func newMockRunStore() *mockRunStore {
	return &mockRunStore{runs: map[uuid.UUID]models.Run{}}
}

func (m *mockRunStore) Create(_ context.Context, run *models.Run) error {
	if m.createErr != nil {
		return m.createErr
	}
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
	return nil
}

func (m *mockRunStore) GetByID(_ context.Context, id uuid.UUID) (*models.Run, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	return &run, nil
}

func (m *mockRunStore) ListRecent(_ context.Context, limit int) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return m.recent, nil
}

func (m *mockRunStore) get(id uuid.UUID) (models.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	return run, ok
}

// mockQueue records enqueued jobs
type mockQueue struct {
	mu       sync.Mutex
	enqueued []*queue.Job
	err      error
}

var _ queue.JobQueue = (*mockQueue)(nil)

func (q *mockQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) HealthCheck(context.Context) error { return nil }

// mockMappingStore is an ordered in-memory mapping table
type mockMappingStore struct {
	mu       sync.Mutex
	mappings []models.ProjectMapping
	err      error
}

var _ database.MappingStore = (*mockMappingStore)(nil)

func (m *mockMappingStore) List(context.Context) ([]models.ProjectMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.ProjectMapping(nil), m.mappings...), nil
}

func (m *mockMappingStore) Upsert(_ context.Context, mapping models.ProjectMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.mappings {
		if strings.EqualFold(m.mappings[i].Tag, mapping.Tag) {
			m.mappings[i] = mapping
			return nil
		}
	}
	m.mappings = append(m.mappings, mapping)
	return nil
}

func (m *mockMappingStore) Delete(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.mappings {
		if strings.EqualFold(m.mappings[i].Tag, tag) {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return nil
		}
	}
	return database.ErrMappingNotFound
}

// mockTodoist answers lookups with fixed data or an error
type mockTodoist struct {
	projects []todoist.Project
	labels   []todoist.Label
	err      error
}

var _ TodoistLookup = (*mockTodoist)(nil)

func (m *mockTodoist) Projects(context.Context) ([]todoist.Project, error) {
	return m.projects, m.err
}

func (m *mockTodoist) Labels(context.Context) ([]todoist.Label, error) {
	return m.labels, m.err
}

// mockConverter reports a fixed sidecar health
type mockConverter struct {
	health *converter.Health
	err    error
}

var _ ConverterStatus = (*mockConverter)(nil)

func (m *mockConverter) Health(context.Context) (*converter.Health, error) {
	return m.health, m.err
}
