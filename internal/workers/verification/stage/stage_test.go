package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verification/internal/common/audit"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/recordstore"
)

type failingNotifier struct{}

func (failingNotifier) Publish(context.Context, string, string) error {
	return errors.New("topic not found")
}

func newTestRunner(t *testing.T) (*Runner, *recordstore.MemoryStore, *notify.MemoryNotifier, *audit.MemoryRecorder) {
	store := recordstore.NewMemoryStore()
	notifier := &notify.MemoryNotifier{}
	recorder := &audit.MemoryRecorder{}
	r := NewRunner("compare-faces", Deps{Store: store, Notifier: notifier, Audit: recorder}, time.Second, logger.NewTestLogger(t))
	return r, store, notifier, recorder
}

func TestExecute_SuccessRecordsAudit(t *testing.T) {
	r, _, _, recorder := newTestRunner(t)

	out, err := r.Execute(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123", Verdict: models.Bool(true), Output: "ok"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Output)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomePassed, events[0].Outcome)
	assert.Equal(t, "abc123", events[0].ApplicationID)
}

func TestExecute_FailureWritesAbortMarker(t *testing.T) {
	r, store, _, recorder := newTestRunner(t)

	_, err := r.Execute(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewFaceComparisonFailedError(errors.New("throttled"))
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsCapability(err))

	rec, getErr := store.Get(context.Background(), "abc123")
	require.NoError(t, getErr)
	assert.Equal(t, "compare-faces", rec.AbortedStage)
	assert.Contains(t, rec.AbortReason, "FACE_COMPARISON_FAILED")
	assert.Equal(t, models.StatusAborted, rec.Status())

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeError, events[0].Outcome)
	assert.Equal(t, "FACE_COMPARISON_FAILED", events[0].ErrorCode)
}

func TestExecute_PlainErrorIsNormalized(t *testing.T) {
	r, _, _, _ := newTestRunner(t)

	_, err := r.Execute(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New("boom")
	})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternalError))
}

func TestRecordVerdict_NotifiesOnlyOnFalse(t *testing.T) {
	r, store, notifier, _ := newTestRunner(t)
	ctx := context.Background()

	require.NoError(t, r.RecordVerdict(ctx, "abc123", models.FieldFaceMatch, true, notify.MessageFaceMatchFailed))
	assert.Empty(t, notifier.Notices())

	require.NoError(t, r.RecordVerdict(ctx, "abc123", models.FieldFaceMatch, false, notify.MessageFaceMatchFailed))
	notices := notifier.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.MessageFaceMatchFailed, notices[0].Subject)
	assert.Equal(t, notify.MessageFaceMatchFailed, notices[0].Message)

	rec, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, rec.FaceMatch)
	assert.False(t, *rec.FaceMatch)
	assert.Equal(t, 2, store.Writes(models.FieldFaceMatch))
}

func TestRecordVerdict_NotificationFailureIsNotFatal(t *testing.T) {
	store := recordstore.NewMemoryStore()
	r := NewRunner("compare-details", Deps{Store: store, Notifier: failingNotifier{}}, 0, logger.NewNoOpLogger())

	err := r.RecordVerdict(context.Background(), "abc123", models.FieldDetailsMatch, false, notify.MessageDetailsMatchFailed)
	assert.NoError(t, err)
}

func TestRecordVerdict_RejectsUnknownField(t *testing.T) {
	r, _, _, _ := newTestRunner(t)

	err := r.RecordVerdict(context.Background(), "abc123", models.FieldFirstName, true, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestDecode(t *testing.T) {
	var dst struct {
		Application struct {
			AppUUID string `json:"app_uuid"`
		} `json:"application"`
	}

	require.NoError(t, Decode(`{"application":{"app_uuid":"abc123"}}`, &dst, validation.ApplicationSchema))
	assert.Equal(t, "abc123", dst.Application.AppUUID)

	err := Decode(`{"application":{}}`, &dst, validation.ApplicationSchema)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	err = Decode(`{not json`, &dst)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestExecuteQueued_RetryableFailureLeavesNoMarker(t *testing.T) {
	r, store, _, _ := newTestRunner(t)

	_, err := r.ExecuteQueued(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewThirdPartyUnavailableError(errors.New("timeout"))
	})
	require.Error(t, err)

	_, getErr := store.Get(context.Background(), "abc123")
	assert.True(t, apperrors.HasCode(getErr, apperrors.ErrCodeRecordNotFound))

	_, err = r.ExecuteQueued(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewThirdPartyBadResponseError("not json")
	})
	require.Error(t, err)

	rec, getErr := store.Get(context.Background(), "abc123")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusAborted, rec.Status())
}

func TestExecute_SuccessClearsOwnAbortMarker(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	ctx := context.Background()

	_, err := r.Execute(ctx, func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewFaceComparisonFailedError(errors.New("ThrottlingException"))
	})
	require.Error(t, err)

	_, err = r.Execute(ctx, func(ctx context.Context) (Outcome, error) {
		if err := r.RecordVerdict(ctx, "abc123", models.FieldFaceMatch, true, notify.MessageFaceMatchFailed); err != nil {
			return Outcome{ApplicationID: "abc123"}, err
		}
		return Outcome{ApplicationID: "abc123", Verdict: models.Bool(true)}, nil
	})
	require.NoError(t, err)

	require.NoError(t, store.SetVerdict(ctx, "abc123", models.FieldDetailsMatch, true))
	require.NoError(t, store.SetVerdict(ctx, "abc123", models.FieldThirdPartyValidation, true))

	rec, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Empty(t, rec.AbortedStage)
	assert.Empty(t, rec.AbortReason)
	assert.True(t, rec.Verified())
	assert.Equal(t, models.StatusDone, rec.Status())
}

func TestExecute_SuccessKeepsOtherStageAbortMarker(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	ctx := context.Background()
	require.NoError(t, store.MarkAborted(ctx, "abc123", "compare-details", "NO_IDENTITY_DOCUMENT: none found"))

	_, err := r.Execute(ctx, func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123", Verdict: models.Bool(true)}, nil
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "compare-details", rec.AbortedStage)
	assert.Equal(t, models.StatusAborted, rec.Status())
}

// contextStore rejects writes made with a done context, like a network backend.
type contextStore struct {
	*recordstore.MemoryStore
}

func (s contextStore) MarkAborted(ctx context.Context, applicationID, stage, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkAborted(ctx, applicationID, stage, reason)
}

func (s contextStore) ClearAbort(ctx context.Context, applicationID, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.ClearAbort(ctx, applicationID, stage)
}

func TestExecute_AbortMarkerSurvivesCancelledContext(t *testing.T) {
	store := contextStore{recordstore.NewMemoryStore()}
	r := NewRunner("compare-details", Deps{Store: store}, time.Second, logger.NewTestLogger(t))

	// a sibling comparison failing first cancels the shared context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewDocumentExtractionFailedError(ctx.Err())
	})
	require.Error(t, err)

	rec, getErr := store.Get(context.Background(), "abc123")
	require.NoError(t, getErr)
	assert.Equal(t, "compare-details", rec.AbortedStage)

	_, err = r.Execute(ctx, func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123", Verdict: models.Bool(true)}, nil
	})
	require.NoError(t, err)

	rec, getErr = store.Get(context.Background(), "abc123")
	require.NoError(t, getErr)
	assert.Empty(t, rec.AbortedStage)
}
