// Package recordstore persists application records. Every write is a
// field-level upsert so that stages running concurrently never overwrite each
// other's fields.
package recordstore

import (
	"context"
	"fmt"
	"sync"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/models"
)

// Store is implemented by every record backend.
type Store interface {
	// UpsertClaim sets the claim schema fields present in claim. Fields outside
	// the schema are ignored.
	UpsertClaim(ctx context.Context, applicationID string, claim models.ClaimFields) error
	// SetVerdict sets one of the verdict fields, overwriting any previous value.
	SetVerdict(ctx context.Context, applicationID, field string, verdict bool) error
	// MarkAborted records the stage that failed hard and why.
	MarkAborted(ctx context.Context, applicationID, stage, reason string) error
	// ClearAbort removes the abort marker, but only when stage wrote it.
	ClearAbort(ctx context.Context, applicationID, stage string) error
	// Get returns the record or a RECORD_NOT_FOUND error.
	Get(ctx context.Context, applicationID string) (*models.Record, error)
}

func checkVerdictField(field string) error {
	if !models.IsVerdictField(field) {
		return apperrors.NewInvalidInputError(fmt.Sprintf("%q is not a verdict field", field))
	}
	return nil
}

// MemoryStore keeps records in process. It backs tests and the local
// validation tooling.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
	writes  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.Record),
		writes:  make(map[string]int),
	}
}

func (m *MemoryStore) record(id string) *models.Record {
	r, ok := m.records[id]
	if !ok {
		r = &models.Record{ApplicationID: id}
		m.records[id] = r
	}
	return r
}

func (m *MemoryStore) UpsertClaim(_ context.Context, applicationID string, claim models.ClaimFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(applicationID)
	if r.Claim == nil {
		r.Claim = models.ClaimFields{}
	}
	for k, v := range claim.Restrict() {
		r.Claim[k] = v
		m.writes[k]++
	}
	return nil
}

func (m *MemoryStore) SetVerdict(_ context.Context, applicationID, field string, verdict bool) error {
	if err := checkVerdictField(field); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(applicationID).SetVerdict(field, verdict)
	m.writes[field]++
	return nil
}

func (m *MemoryStore) MarkAborted(_ context.Context, applicationID, stage, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(applicationID)
	r.AbortedStage = stage
	r.AbortReason = reason
	m.writes[models.FieldAbortedStage]++
	return nil
}

func (m *MemoryStore) ClearAbort(_ context.Context, applicationID, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[applicationID]
	if !ok || r.AbortedStage != stage {
		return nil
	}
	r.AbortedStage = ""
	r.AbortReason = ""
	m.writes[models.FieldAbortedStage]++
	return nil
}

func (m *MemoryStore) Get(_ context.Context, applicationID string) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[applicationID]
	if !ok {
		return nil, apperrors.NewRecordNotFoundError(applicationID)
	}
	cp := *r
	if r.Claim != nil {
		cp.Claim = make(models.ClaimFields, len(r.Claim))
		for k, v := range r.Claim {
			cp.Claim[k] = v
		}
	}
	return &cp, nil
}

// Writes returns how many times field has been written across all records.
func (m *MemoryStore) Writes(field string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[field]
}
