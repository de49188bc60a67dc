// Package audit keeps a searchable trail of stage outcomes.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// Outcomes recorded for a stage run.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
	OutcomeDone   = "done"
)

// Event is one stage outcome for one application.
type Event struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	Stage         string                 `json:"stage"`
	Outcome       string                 `json:"outcome"`
	Verdict       *bool                  `json:"verdict,omitempty"`
	ErrorCode     string                 `json:"errorCode,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(applicationID, stage, outcome string) Event {
	return Event{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		Stage:         stage,
		Outcome:       outcome,
		Timestamp:     time.Now().UTC(),
	}
}

// Recorder stores audit events. Failures are reported but never fail a stage.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// ElasticsearchRecorder indexes events, one document per event.
type ElasticsearchRecorder struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchRecorder(client *elasticsearch.Client, index string) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{client: client, index: index}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	res, err := r.client.Index(
		r.index,
		bytes.NewReader(body),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(event.ID),
	)
	if err != nil {
		return fmt.Errorf("index audit event: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return fmt.Errorf("index audit event: %s", res.Status())
	}
	return nil
}

// Noop discards events.
type Noop struct{}

func (Noop) Record(context.Context, Event) error { return nil }

// MemoryRecorder keeps events in process.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
