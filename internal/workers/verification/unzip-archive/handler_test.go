package unziparchive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verification/internal/common/audit"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/storage"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const testBucket = "license-uploads"

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig(t *testing.T) *Config {
	return &Config{
		Timeout:        5 * time.Second,
		UnzippedPrefix: "unzipped/",
		WorkDir:        t.TempDir(),
		MaxMemberBytes: 1 << 20,
	}
}

func createTestInput(key string) *Input {
	return &Input{Detail: models.NewStorageDetail(testBucket, key)}
}

func buildArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func validMembers() map[string]string {
	return map[string]string{
		"abc123_selfie.png":  "selfie-bytes",
		"abc123_license.png": "license-bytes",
		"abc123_details.csv": "DOCUMENT_NUMBER,FIRST_NAME\nD123,JANE\n",
	}
}

type failingUploadStore struct {
	*storage.MemoryStore
}

func (f failingUploadStore) UploadFile(context.Context, string, string, string) error {
	return errors.New("access denied")
}

func assertWorkspaceRemoved(t *testing.T, cfg *Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace left behind")
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	cfg := createTestConfig(t)
	objects := storage.NewMemoryStore()
	objects.Put(testBucket, "abc123.zip", buildArchive(t, validMembers()))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

	require.NoError(t, err)
	assert.Equal(t, "abc123", out.Application.AppUUID)
	assert.Equal(t, "unzipped/abc123_selfie.png", out.SelfieKey)
	assert.Equal(t, "unzipped/abc123_license.png", out.LicenseKey)
	assert.Equal(t, "unzipped/abc123_details.csv", out.DetailsKey)

	assert.Equal(t, []string{
		"abc123.zip",
		"unzipped/abc123_details.csv",
		"unzipped/abc123_license.png",
		"unzipped/abc123_selfie.png",
	}, objects.Keys(testBucket))

	selfie, err := objects.ReadObject(context.Background(), testBucket, out.SelfieKey)
	require.NoError(t, err)
	assert.Equal(t, "selfie-bytes", string(selfie))

	assertWorkspaceRemoved(t, cfg)
}

func TestHandler_Execute_NestedKeyAndJPEG(t *testing.T) {
	cfg := createTestConfig(t)
	objects := storage.NewMemoryStore()
	objects.Put(testBucket, "incoming/2024/app-9.zip", buildArchive(t, map[string]string{
		"app-9/":             "",
		"app-9_selfie.jpg":   "s",
		"app-9_license.jpeg": "l",
		"app-9_details.csv":  "h\nv\n",
	}))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewNoOpLogger())
	out, err := h.Execute(context.Background(), createTestInput("incoming/2024/app-9.zip"))

	require.NoError(t, err)
	assert.Equal(t, "app-9", out.Application.AppUUID)
	assert.Equal(t, "unzipped/app-9_selfie.jpg", out.SelfieKey)
	assert.Equal(t, "unzipped/app-9_license.jpeg", out.LicenseKey)
}

func TestHandler_Execute_RejectedArchivesPublishNothing(t *testing.T) {
	tests := []struct {
		name     string
		members  map[string]string
		wantCode apperrors.ErrorCode
	}{
		{
			name: "identifier mismatch",
			members: map[string]string{
				"abc123_selfie.png":  "s",
				"xyz999_license.png": "l",
				"abc123_details.csv": "d",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
		{
			name: "extra member",
			members: map[string]string{
				"abc123_selfie.png":  "s",
				"abc123_license.png": "l",
				"abc123_details.csv": "d",
				"abc123_notes.txt":   "n",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
		{
			name: "missing selfie",
			members: map[string]string{
				"abc123_license.png": "l",
				"abc123_details.csv": "d",
			},
			wantCode: apperrors.ErrCodeArchiveMemberMissing,
		},
		{
			name: "member in a directory",
			members: map[string]string{
				"nested/abc123_selfie.png": "s",
				"abc123_license.png":       "l",
				"abc123_details.csv":       "d",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
		{
			name: "parent traversal",
			members: map[string]string{
				"../abc123_selfie.png": "s",
				"abc123_license.png":   "l",
				"abc123_details.csv":   "d",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
		{
			name: "details not csv",
			members: map[string]string{
				"abc123_selfie.png":   "s",
				"abc123_license.png":  "l",
				"abc123_details.json": "d",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
		{
			name: "duplicate kind",
			members: map[string]string{
				"abc123_selfie.png":  "s",
				"abc123_selfie.jpg":  "s",
				"abc123_license.png": "l",
				"abc123_details.csv": "d",
			},
			wantCode: apperrors.ErrCodeArchiveInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig(t)
			objects := storage.NewMemoryStore()
			objects.Put(testBucket, "abc123.zip", buildArchive(t, tt.members))

			h := NewHandler(cfg, objects, stage.Deps{}, logger.NewTestLogger(t))
			out, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

			assert.Nil(t, out)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, []string{"abc123.zip"}, objects.Keys(testBucket))
			assertWorkspaceRemoved(t, cfg)
		})
	}
}

func TestHandler_Execute_MissingMemberIsNotFound(t *testing.T) {
	cfg := createTestConfig(t)
	objects := storage.NewMemoryStore()
	objects.Put(testBucket, "abc123.zip", buildArchive(t, map[string]string{
		"abc123_selfie.png":  "s",
		"abc123_license.png": "l",
	}))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "abc123_details.csv")
}

func TestHandler_Execute_CorruptArchive(t *testing.T) {
	cfg := createTestConfig(t)
	objects := storage.NewMemoryStore()
	objects.Put(testBucket, "abc123.zip", []byte("definitely not a zip"))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeArchiveInvalid))
	assertWorkspaceRemoved(t, cfg)
}

func TestHandler_Execute_DownloadFailure(t *testing.T) {
	cfg := createTestConfig(t)
	h := NewHandler(cfg, storage.NewMemoryStore(), stage.Deps{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), createTestInput("missing.zip"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeArchiveDownloadFailed))
	assert.True(t, apperrors.IsStorage(err))
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

func TestHandler_Execute_UploadFailure(t *testing.T) {
	cfg := createTestConfig(t)
	objects := failingUploadStore{storage.NewMemoryStore()}
	objects.Put(testBucket, "abc123.zip", buildArchive(t, validMembers()))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeObjectUploadFailed))
	assertWorkspaceRemoved(t, cfg)
}

func TestHandler_Execute_OversizedMember(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.MaxMemberBytes = 4
	objects := storage.NewMemoryStore()
	objects.Put(testBucket, "abc123.zip", buildArchive(t, validMembers()))

	h := NewHandler(cfg, objects, stage.Deps{}, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), createTestInput("abc123.zip"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeArchiveInvalid))
	assert.Equal(t, []string{"abc123.zip"}, objects.Keys(testBucket))
}

func TestHandler_Run_RecordsAuditWithoutTouchingRecords(t *testing.T) {
	cfg := createTestConfig(t)
	objects := storage.NewMemoryStore()
	recorder := &audit.MemoryRecorder{}

	h := NewHandler(cfg, objects, stage.Deps{Audit: recorder}, logger.NewNoOpLogger())
	_, err := h.Run(context.Background(), createTestInput("abc123.zip"))
	require.Error(t, err)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "abc123", events[0].ApplicationID)
	assert.Equal(t, TaskType, events[0].Stage)
	assert.Equal(t, audit.OutcomeError, events[0].Outcome)
}
