// Package workers runs the voice note pipeline, synchronously or from the
// job queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/audio"
	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/directive"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/pages"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/services/ai"
	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/benvon/voiceflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// fallbackTitleLayout names pages when no summary title is available. Page
// titles become file names, so the layout avoids ":".
const fallbackTitleLayout = "Voice Note 2006-01-02 15.04"

// Workspace is the graph a run reads from and writes to, together with the
// settings that apply to it. *session.Session satisfies it.
type Workspace interface {
	pages.Files
	Remove(name string) error
	Settings() models.Settings
}

// TaskCreator pushes tasks to the task manager.
type TaskCreator interface {
	Configured() bool
	CreateTask(ctx context.Context, task todoist.NewTask) (*todoist.Task, error)
}

// ConverterFactory builds the AAC converter for the given settings.
type ConverterFactory func(settings models.Settings) audio.Converter

// NoteProcessor runs one voice note through transcription, directive
// parsing, summarization, task extraction, page writing and task push.
type NoteProcessor struct {
	aiProvider   ai.AIProvider
	tasks        TaskCreator
	prompts      *prompts.Library
	runs         database.RunStore
	mappings     database.MappingStore
	newConverter ConverterFactory
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a NoteProcessor.
type Option func(*NoteProcessor)

// WithRunStore persists the run after every state transition.
func WithRunStore(runs database.RunStore) Option {
	return func(p *NoteProcessor) { p.runs = runs }
}

// WithMappingStore merges stored project mappings over the workspace
// mappings at the start of every run.
func WithMappingStore(mappings database.MappingStore) Option {
	return func(p *NoteProcessor) { p.mappings = mappings }
}

// WithConverterFactory replaces the default sidecar converter.
func WithConverterFactory(f ConverterFactory) Option {
	return func(p *NoteProcessor) { p.newConverter = f }
}

// WithClock sets the time source used for fallback titles and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *NoteProcessor) { p.now = now }
}

// NewNoteProcessor creates a new note processor. A nil prompt library means
// the built-in prompts; a nil logger discards output.
func NewNoteProcessor(aiProvider ai.AIProvider, tasks TaskCreator, library *prompts.Library, logger *zap.Logger, opts ...Option) *NoteProcessor {
	if library == nil {
		library = prompts.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &NoteProcessor{
		aiProvider: aiProvider,
		tasks:      tasks,
		prompts:    library,
		logger:     logger,
		now:        time.Now,
	}
	p.newConverter = func(s models.Settings) audio.Converter {
		return converter.NewClient(s.ConverterHost, s.ConverterPort, p.logger)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start creates a run for block, persists it when a run store is configured
// and executes it.
func (p *NoteProcessor) Start(ctx context.Context, ws Workspace, block models.BlockRef) (*models.Run, error) {
	run := models.NewRun(block)
	if p.runs != nil {
		if err := p.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	return p.Execute(ctx, ws, run)
}

// pipeline carries the values produced by earlier steps of one run.
type pipeline struct {
	ws         Workspace
	settings   models.Settings
	run        *models.Run
	graph      *pages.Graph
	block      *pages.Block
	attachment audio.Attachment
	file       models.AudioFile
	transcript string
	directives models.Directives
	title      string
	summary    *string
	plan       *ai.TaskPlan
}

// Execute runs the pipeline for run. The returned run always reflects the
// final state; the error is a *PipelineError when the run ended errored.
func (p *NoteProcessor) Execute(ctx context.Context, ws Workspace, run *models.Run) (*models.Run, error) {
	ctx = ai.WithRunID(ctx, run.ID.String())
	ctx, span := telemetry.StartSpan(ctx, "voice_note.process",
		attribute.String("run_id", run.ID.String()),
		attribute.String("block", run.Block.String()),
	)

	pl := &pipeline{
		ws:       ws,
		settings: ws.Settings(),
		run:      run,
		graph:    pages.NewGraph(ws, p.logger),
	}
	if p.mappings != nil {
		pl.settings.ProjectMappings = p.resolveMappings(ctx, pl.settings.ProjectMappings)
	}
	run.ErrorKind, run.ErrorMessage = "", ""
	run.Warnings, run.CreatedTaskIDs = nil, nil
	run.CompletedAt = nil

	steps := []struct {
		state models.RunState
		fn    func(ctx context.Context, pl *pipeline) error
	}{
		{models.RunStateFetchingAudio, p.fetchAudio},
		{models.RunStateTranscribing, p.transcribe},
		{models.RunStateParsingDirectives, p.parseDirectives},
		{models.RunStateSummarizing, p.summarize},
		{models.RunStateExtractingTasks, p.extractTasks},
		{models.RunStateWritingPage, p.writePage},
		{models.RunStatePushingTasks, p.pushTasks},
	}

	var err error
	if !p.aiProvider.Configured() {
		err = p.fail(ctx, run, models.RunStateIdle, KindMissingCredential, ai.ErrMissingAPIKey)
	}
	for _, step := range steps {
		if err != nil {
			break
		}
		p.transition(ctx, run, step.state)
		stepCtx, stepSpan := telemetry.StartSpan(ctx, string(step.state))
		stepErr := step.fn(stepCtx, pl)
		telemetry.EndSpan(stepSpan, stepErr)
		if stepErr != nil {
			err = stepErr
		}
	}

	if err == nil {
		now := p.now().UTC()
		run.CompletedAt = &now
		p.transition(ctx, run, models.RunStateDone)
		p.logger.Info("voice_note_processed",
			zap.String("run_id", run.ID.String()),
			zap.String("page_title", run.PageTitle),
			zap.Int("tasks_created", len(run.CreatedTaskIDs)),
			zap.Int("warnings", len(run.Warnings)),
		)
	}
	telemetry.EndSpan(span, err)
	return run, err
}

func (p *NoteProcessor) resolveMappings(ctx context.Context, base []models.ProjectMapping) []models.ProjectMapping {
	stored, err := p.mappings.List(ctx)
	if err != nil {
		p.logger.Warn("project_mappings_load_failed", zap.Error(err))
		return base
	}
	return database.MergeMappings(base, stored)
}

func (p *NoteProcessor) transition(ctx context.Context, run *models.Run, state models.RunState) {
	run.State = state
	run.UpdatedAt = p.now().UTC()
	if p.runs == nil {
		return
	}
	// persistence runs even when the pipeline context is already done
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.runs.Update(saveCtx, run); err != nil {
		p.logger.Warn("run_state_save_failed",
			zap.String("run_id", run.ID.String()),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

// fail ends the run in the errored state.
func (p *NoteProcessor) fail(ctx context.Context, run *models.Run, state models.RunState, kind ErrorKind, err error) error {
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	perr := &PipelineError{Kind: kind, State: state, Err: err}
	run.ErrorKind = string(kind)
	run.ErrorMessage = perr.Message()
	now := p.now().UTC()
	run.CompletedAt = &now
	p.transition(ctx, run, models.RunStateErrored)
	p.logger.Error("voice_note_failed",
		zap.String("run_id", run.ID.String()),
		zap.String("state", string(state)),
		zap.String("error_kind", string(kind)),
		zap.Error(err),
	)
	return perr
}

func (p *NoteProcessor) warn(run *models.Run, event, msg string, err error) {
	run.Warnings = append(run.Warnings, msg)
	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("warning", msg),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Warn(event, fields...)
}

func (p *NoteProcessor) fetchAudio(ctx context.Context, pl *pipeline) error {
	state := models.RunStateFetchingAudio
	block, err := pl.graph.ReadBlock(pl.run.Block)
	if err != nil {
		return p.fail(ctx, pl.run, state, KindAudioUnavailable, err)
	}
	pl.block = block

	att, ok := audio.Find(block.Content)
	if !ok {
		return p.fail(ctx, pl.run, state, KindAudioUnavailable, audio.ErrNoAttachment)
	}
	pl.attachment = att

	var conv audio.Converter
	if p.newConverter != nil {
		conv = p.newConverter(pl.settings)
	}
	file, warnings, err := audio.NewLoader(pl.ws, conv, p.logger).Load(ctx, att)
	if err != nil {
		return p.fail(ctx, pl.run, state, KindAudioUnavailable, err)
	}
	pl.run.Warnings = append(pl.run.Warnings, warnings...)
	pl.file = file
	return nil
}

func (p *NoteProcessor) transcribe(ctx context.Context, pl *pipeline) error {
	state := models.RunStateTranscribing
	text, err := p.aiProvider.Transcribe(ctx, pl.file)
	if err != nil {
		return p.fail(ctx, pl.run, state, Classify(err), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.fail(ctx, pl.run, state, KindEmptyTranscript, ErrEmptyTranscript)
	}
	pl.transcript = text
	pl.run.Transcript = text
	p.logger.Info("voice_note_transcribed",
		zap.String("run_id", pl.run.ID.String()),
		zap.String("file_name", pl.file.Name),
		zap.Int("transcript_length", len(text)),
	)
	return nil
}

func (p *NoteProcessor) parseDirectives(_ context.Context, pl *pipeline) error {
	pl.directives = directive.Parse(pl.transcript, pl.block.Content, pl.settings)
	d := pl.directives
	pl.run.Directives = &d
	p.logger.Info("directives_parsed",
		zap.String("run_id", pl.run.ID.String()),
		zap.Bool("create_todo", d.CreateTodo),
		zap.String("mode", string(d.Mode())),
		zap.String("project_id", d.ProjectID),
		zap.Int("priority", d.Priority),
		zap.String("due_date", d.DueDate),
	)
	return nil
}

func (p *NoteProcessor) promptFor(custom, key string) prompts.Prompt {
	if strings.TrimSpace(custom) != "" {
		return p.prompts.Get(custom)
	}
	return p.prompts.Get(key)
}

func (p *NoteProcessor) summarize(ctx context.Context, pl *pipeline) error {
	if !pl.settings.CreatePage {
		return nil
	}
	prompt := p.promptFor(pl.settings.SummaryPrompt, prompts.KeySummarize)
	res, err := p.aiProvider.Summarize(ctx, pl.transcript, prompt)
	if err != nil {
		p.warn(pl.run, "summary_failed", "Summary failed, using a timestamp title", err)
	} else {
		pl.title = res.Title()
		if body := res.Body(); body != "" {
			pl.summary = &body
		}
	}
	if pl.title == "" {
		pl.title = ai.SafeTitle(p.now().Format(fallbackTitleLayout))
	}
	return nil
}

func (p *NoteProcessor) extractTasks(ctx context.Context, pl *pipeline) error {
	d := pl.directives
	if !d.CreateTodo {
		return nil
	}

	if !d.UseAI {
		title := d.CleanText
		if title == "" {
			title = pl.title
		}
		if title == "" {
			title = pl.transcript
		}
		pl.plan = &ai.TaskPlan{Mode: ai.PlanModeSingle, Tasks: []ai.PlannedTask{{Title: title}}}
		return nil
	}

	prompt := p.promptFor(pl.settings.TaskPrompt, prompts.KeyTasks)
	plan, err := p.aiProvider.ExtractTasks(ctx, d.CleanText, prompt)
	if err != nil {
		msg := "Task extraction failed, creating a single task from the note"
		if Classify(err) == KindMalformedResponse {
			msg = "Task extraction returned an unreadable plan, creating a single task from the note"
		}
		p.warn(pl.run, "task_extraction_failed", msg, err)
		plan = ai.FallbackPlan(d.CleanText)
	}
	pl.plan = &plan
	return nil
}

// useHierarchy reports whether the plan is pushed as a parent with subtasks,
// and under which parent title.
func useHierarchy(d models.Directives, plan *ai.TaskPlan, settings models.Settings) (string, bool) {
	if plan == nil || !d.UseAI || len(plan.Tasks) <= 1 || !settings.HierarchicalTasks {
		return "", false
	}
	parent := plan.ParentTitle()
	if parent == "" {
		parent = strings.TrimSpace(d.MasterTaskTitle)
	}
	return parent, parent != ""
}

func (p *NoteProcessor) taskLines(pl *pipeline) []pages.TaskLine {
	if pl.plan == nil || !pl.settings.AddTasksSection {
		return nil
	}
	parent, hierarchy := useHierarchy(pl.directives, pl.plan, pl.settings)
	var lines []pages.TaskLine
	depth := 0
	if hierarchy {
		lines = append(lines, pages.TaskLine{Title: parent})
		depth = 1
	}
	for _, t := range pl.plan.Tasks {
		lines = append(lines, pages.TaskLine{Title: t.Title, Depth: depth})
	}
	return lines
}

func (p *NoteProcessor) writePage(_ context.Context, pl *pipeline) error {
	if !pl.settings.CreatePage {
		return nil
	}

	page := pages.Page{
		Title:      pl.title,
		Summary:    pl.summary,
		Transcript: pl.transcript,
		Tasks:      p.taskLines(pl),
	}
	if pl.settings.AppendTimestamp {
		page.RecordedAt = p.now()
	}
	title, err := pl.graph.WritePage(page)
	if err != nil {
		p.warn(pl.run, "page_write_failed", "Could not write the transcription page", err)
		return nil
	}
	pl.run.PageTitle = title

	if pl.settings.PageReference != models.PageReferenceNone {
		ref := pages.FormatReference(pl.settings.PageReferenceFormat, title)
		if err := pl.graph.AddReference(pl.run.Block, pl.settings.PageReference, ref); err != nil {
			p.warn(pl.run, "page_reference_failed", "Could not link the page from the note block", err)
		}
	}

	if pl.settings.AutoDeleteAudio {
		p.deleteAudio(pl)
	}
	return nil
}

func (p *NoteProcessor) deleteAudio(pl *pipeline) {
	if err := pl.graph.RemoveFromBlock(pl.run.Block, pl.attachment.Markdown); err != nil {
		p.warn(pl.run, "audio_reference_remove_failed", "Could not remove the audio reference from the block", err)
		return
	}
	if err := pl.ws.Remove(pl.attachment.Path); err != nil {
		p.warn(pl.run, "audio_delete_failed", "Could not delete the processed audio file", err)
	}
}

func (p *NoteProcessor) pushTasks(ctx context.Context, pl *pipeline) error {
	d := pl.directives
	if !d.CreateTodo || pl.plan == nil || len(pl.plan.Tasks) == 0 {
		return nil
	}
	if p.tasks == nil || !p.tasks.Configured() {
		p.warn(pl.run, "todoist_not_configured", "Todoist is not configured, no tasks were created", nil)
		return nil
	}

	base := todoist.NewTask{
		ProjectID: d.ProjectID,
		Labels:    d.Labels,
		Priority:  d.Priority,
		DueString: d.DueDate,
	}

	var parentID string
	if parent, ok := useHierarchy(d, pl.plan, pl.settings); ok {
		task := base
		task.Content = parent
		created, err := p.createTask(ctx, pl, task)
		if err != nil {
			return err
		}
		if created != nil {
			parentID = created.ID
		}
	}

	for _, t := range pl.plan.Tasks {
		task := base
		task.Content = t.Title
		task.ParentID = parentID
		if t.Due != "" {
			task.DueString = t.Due
		}
		if _, err := p.createTask(ctx, pl, task); err != nil {
			return err
		}
	}
	return nil
}

// createTask pushes one task. A rejected credential ends the run; any other
// failure becomes a warning and the remaining tasks are still attempted.
func (p *NoteProcessor) createTask(ctx context.Context, pl *pipeline, task todoist.NewTask) (*todoist.Task, error) {
	created, err := p.tasks.CreateTask(ctx, task)
	if err == nil {
		pl.run.CreatedTaskIDs = append(pl.run.CreatedTaskIDs, created.ID)
		return created, nil
	}

	kind := Classify(err)
	switch kind {
	case KindUnauthorized, KindMissingCredential, KindCancelled:
		return nil, p.fail(ctx, pl.run, models.RunStatePushingTasks, kind, err)
	}
	p.warn(pl.run, "todoist_task_failed", fmt.Sprintf("Could not create task %q (%s)", task.Content, kind), err)
	return nil, nil
}
