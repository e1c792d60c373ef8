// Package research defines the domain entities flowing between the
// supervisor, the workers and the report synthesizer: the research brief,
// worker tasks, worker findings and collected sources.
package research

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrCancelled reports a run cut short by context cancellation. Partial
// findings may still accompany it.
var ErrCancelled = errors.New("research cancelled")

// Brief is the supervisor's distillation of the user's question. Immutable
// once written; every worker reads it.
type Brief struct {
	Question        string   `json:"question"`
	SuccessCriteria []string `json:"success_criteria"`
	Constraints     []string `json:"constraints"`
	Language        string   `json:"language"`
}

// WorkerTask is one delegated sub-question. One-shot: a task is never
// reassigned or retried with the same ID.
type WorkerTask struct {
	ID            string `json:"id"`
	SubQuestion   string `json:"sub_question"`
	Brief         *Brief `json:"-"`
	MaxIterations int    `json:"max_iterations"`
	MaxToolCalls  int    `json:"max_tool_calls"`
}

// NewWorkerTask mints a task for a sub-question.
func NewWorkerTask(brief *Brief, subQuestion string, maxIterations, maxToolCalls int) *WorkerTask {
	return &WorkerTask{
		ID:            uuid.NewString(),
		SubQuestion:   subQuestion,
		Brief:         brief,
		MaxIterations: maxIterations,
		MaxToolCalls:  maxToolCalls,
	}
}

// FindingsStatus is the terminal state of one worker unit.
type FindingsStatus string

const (
	// StatusComplete: the worker decided it had enough evidence.
	StatusComplete FindingsStatus = "complete"

	// StatusExhausted: an iteration, tool-call or context budget ended the
	// unit; partial findings were still compressed.
	StatusExhausted FindingsStatus = "exhausted"

	// StatusFailed: the unit produced nothing usable.
	StatusFailed FindingsStatus = "failed"
)

// Source is one cited origin.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Findings is the immutable output of one worker unit. CompressedText is a
// bulleted claim list where each claim carries at least one source index
// into Sources.
type Findings struct {
	TaskID         string         `json:"task_id"`
	CompressedText string         `json:"compressed_text"`
	RawNotes       []string       `json:"raw_notes"`
	Sources        []Source       `json:"sources"`
	Status         FindingsStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
}

// FailedFindings builds the findings artifact for a unit that produced
// nothing usable.
func FailedFindings(taskID string, err error) *Findings {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Findings{
		TaskID: taskID,
		Status: StatusFailed,
		Error:  msg,
	}
}

// SourceList collects sources with stable 1-based indices, deduplicated by
// URL. One list lives per worker so observation source numbers line up with
// the claim annotations in its compressed findings. Safe for concurrent use.
type SourceList struct {
	mu      sync.Mutex
	sources []Source
	byURL   map[string]int
}

// NewSourceList creates an empty list.
func NewSourceList() *SourceList {
	return &SourceList{byURL: make(map[string]int)}
}

// Add records a source and returns its 1-based index. Re-adding a URL
// returns the original index.
func (l *SourceList) Add(url, title string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.byURL[url]; ok {
		return idx
	}
	l.sources = append(l.sources, Source{URL: url, Title: title})
	idx := len(l.sources)
	l.byURL[url] = idx
	return idx
}

// Sources returns a copy of the collected sources in index order.
func (l *SourceList) Sources() []Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Source, len(l.sources))
	copy(out, l.sources)
	return out
}

// Len returns the number of collected sources.
func (l *SourceList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}

// Get returns the source at a 1-based index.
func (l *SourceList) Get(index int) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 1 || index > len(l.sources) {
		return Source{}, fmt.Errorf("source index %d out of range [1, %d]", index, len(l.sources))
	}
	return l.sources[index-1], nil
}
