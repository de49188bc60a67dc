package stage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/models"
)

// ==========================
// Mock Job Client
// ==========================

// fakeGateway records the job commands a worker sends to the broker.
type fakeGateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *fakeGateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *fakeGateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

type fakeJobClient struct {
	gateway *fakeGateway
}

func noRetry(context.Context, error) bool { return false }

func (c *fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func newFakeJobClient() (*fakeJobClient, *fakeGateway) {
	gw := &fakeGateway{}
	return &fakeJobClient{gateway: gw}, gw
}

func createMockJob(key int64, retries int32) entities.Job {
	variables, _ := json.Marshal(map[string]interface{}{
		"application": map[string]interface{}{"app_uuid": "abc123"},
	})

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     "compare-faces",
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "license-verification",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_CompareFaces",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  retries,
		Deadline:                 0,
		Variables:                string(variables),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

// ==========================
// Job Result Tests
// ==========================

func TestRun_SuccessCompletesWithStepResult(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	client, gw := newFakeJobClient()

	r.Run(client, createMockJob(1, 3), func(ctx context.Context) (Outcome, error) {
		return Outcome{
			ApplicationID: "abc123",
			Verdict:       models.Bool(true),
			Output: map[string]interface{}{
				"applicationId": "abc123",
				"faceMatch":     true,
				"faceProceed":   true,
			},
		}, nil
	})

	require.Len(t, gw.completed, 1)
	assert.Empty(t, gw.failed)
	assert.Empty(t, gw.thrown)
	assert.Equal(t, int64(1), gw.completed[0].JobKey)

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(gw.completed[0].Variables), &vars))
	assert.Equal(t, true, vars["faceProceed"])
	assert.Equal(t, "abc123", vars["applicationId"])

	_, err := store.Get(context.Background(), "abc123")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRun_RetryableErrorFailsWithDecrementedRetries(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	client, gw := newFakeJobClient()

	r.Run(client, createMockJob(2, 3), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewFaceComparisonFailedError(errors.New("ThrottlingException"))
	})

	require.Len(t, gw.failed, 1)
	assert.Empty(t, gw.completed)
	assert.Empty(t, gw.thrown)
	assert.Equal(t, int64(2), gw.failed[0].JobKey)
	assert.Equal(t, int32(2), gw.failed[0].Retries)

	_, err := store.Get(context.Background(), "abc123")
	assert.True(t, apperrors.IsNotFound(err), "redelivered job must not be marked aborted")
}

func TestRun_LastRetryWritesAbortMarker(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	client, gw := newFakeJobClient()

	r.Run(client, createMockJob(3, 1), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewFaceComparisonFailedError(errors.New("ThrottlingException"))
	})

	require.Len(t, gw.failed, 1)
	assert.Equal(t, int32(0), gw.failed[0].Retries)

	rec, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "compare-faces", rec.AbortedStage)
	assert.Equal(t, models.StatusAborted, rec.Status())
}

func TestRun_InvalidInputThrowsBPMNError(t *testing.T) {
	r, store, _, _ := newTestRunner(t)
	client, gw := newFakeJobClient()

	r.Run(client, createMockJob(4, 3), func(ctx context.Context) (Outcome, error) {
		return Outcome{ApplicationID: "abc123"}, apperrors.NewInvalidInputError("application.app_uuid is required")
	})

	require.Len(t, gw.thrown, 1)
	assert.Empty(t, gw.failed)
	assert.Empty(t, gw.completed)
	assert.Equal(t, int64(4), gw.thrown[0].JobKey)
	assert.Equal(t, "INVALID_INPUT", gw.thrown[0].ErrorCode)

	rec, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "compare-faces", rec.AbortedStage)
	assert.Contains(t, rec.AbortReason, "INVALID_INPUT")
}
