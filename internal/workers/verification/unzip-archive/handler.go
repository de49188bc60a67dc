package unziparchive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/storage"
	"license-verification/internal/common/validation"
	"license-verification/internal/models"
	"license-verification/internal/workers/verification/stage"
)

const (
	TaskType = "unzip-archive"
)

type Handler struct {
	config  *Config
	objects storage.ObjectStore
	runner  *stage.Runner
	logger  logger.Logger
}

// NewHandler builds the stager. It never touches the record store, so the
// claim recorder stays the first writer of an application record.
func NewHandler(config *Config, objects storage.ObjectStore, deps stage.Deps, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	deps.Store = nil
	return &Handler{
		config:  config,
		objects: objects,
		runner:  stage.NewRunner(TaskType, deps, config.Timeout, log),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (stage.Outcome, error) {
		var input Input
		if err := stage.Decode(job.Variables, &input, validation.ArchiveEventSchema); err != nil {
			return stage.Outcome{}, err
		}
		return h.outcome(ctx, &input)
	})
}

// Run executes the stage with metrics and audit, outside the broker.
func (h *Handler) Run(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.runner.Execute(ctx, func(ctx context.Context) (stage.Outcome, error) {
		return h.outcome(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return outcome.Output.(*Output), nil
}

func (h *Handler) outcome(ctx context.Context, input *Input) (stage.Outcome, error) {
	o := stage.Outcome{ApplicationID: models.ApplicationIDFromKey(input.Detail.Object.Key)}
	out, err := h.execute(ctx, input)
	if err != nil {
		return o, err
	}
	o.Output = out
	o.Details = map[string]interface{}{"selfieKey": out.SelfieKey, "licenseKey": out.LicenseKey, "detailsKey": out.DetailsKey}
	return o, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	bucket := input.Detail.Bucket.Name
	key := input.Detail.Object.Key
	if bucket == "" || key == "" {
		return nil, apperrors.NewInvalidInputError("detail.bucket.name and detail.object.key are required")
	}

	applicationID := models.ApplicationIDFromKey(key)
	if applicationID == "" || applicationID == "." {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("cannot derive application id from %q", key))
	}

	ws, err := storage.NewWorkspace(h.config.WorkDir)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			h.logger.Warn("workspace cleanup failed", map[string]interface{}{"dir": ws.Dir(), "error": err})
		}
	}()

	archivePath, err := ws.Path("archive.zip")
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := h.objects.DownloadFile(ctx, bucket, key, archivePath); err != nil {
		return nil, apperrors.NewArchiveDownloadFailedError(key, err)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, apperrors.NewArchiveInvalidError(fmt.Sprintf("open %s: %v", key, err))
	}
	defer reader.Close()

	members, err := planMembers(applicationID, reader.File)
	if err != nil {
		return nil, err
	}

	// Every member is validated before the first byte is published.
	staged := make(map[string]string, len(members))
	for kind, f := range members {
		localPath, err := ws.Path(f.Name)
		if err != nil {
			return nil, apperrors.NewArchiveInvalidError(err.Error())
		}
		if err := extract(f, localPath, h.config.MaxMemberBytes); err != nil {
			return nil, err
		}
		staged[kind] = localPath
	}

	out := &Output{Application: models.ApplicationRef{AppUUID: applicationID}}
	for _, kind := range []string{models.MemberSelfie, models.MemberLicense, models.MemberDetails} {
		objectKey := models.StagedKey(h.config.UnzippedPrefix, members[kind].Name)
		if err := h.objects.UploadFile(ctx, bucket, objectKey, staged[kind]); err != nil {
			return nil, apperrors.NewObjectUploadFailedError(objectKey, err)
		}
		switch kind {
		case models.MemberSelfie:
			out.SelfieKey = objectKey
		case models.MemberLicense:
			out.LicenseKey = objectKey
		case models.MemberDetails:
			out.DetailsKey = objectKey
		}
	}

	h.logger.Info("archive staged", map[string]interface{}{
		"applicationId": applicationID,
		"bucket":        bucket,
		"selfieKey":     out.SelfieKey,
		"licenseKey":    out.LicenseKey,
		"detailsKey":    out.DetailsKey,
	})
	return out, nil
}

// planMembers maps each member kind to its archive entry. The archive must
// hold exactly <id>_selfie.<ext>, <id>_license.<ext> and <id>_details.csv.
func planMembers(applicationID string, files []*zip.File) (map[string]*zip.File, error) {
	members := make(map[string]*zip.File, 3)
	prefix := applicationID + "_"

	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := f.Name
		if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			return nil, apperrors.NewArchiveInvalidError(fmt.Sprintf("member %q must be a plain file name", name))
		}
		if !strings.HasPrefix(name, prefix) {
			return nil, apperrors.NewArchiveInvalidError(
				fmt.Sprintf("member %q does not belong to application %q", name, applicationID))
		}

		ext := path.Ext(name)
		kind := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		switch kind {
		case models.MemberSelfie, models.MemberLicense:
			if ext == "" {
				return nil, apperrors.NewArchiveInvalidError(fmt.Sprintf("member %q has no extension", name))
			}
		case models.MemberDetails:
			if !strings.EqualFold(ext, ".csv") {
				return nil, apperrors.NewArchiveInvalidError(fmt.Sprintf("member %q must be a .csv file", name))
			}
		default:
			return nil, apperrors.NewArchiveInvalidError(fmt.Sprintf("unexpected member %q", name))
		}
		if prev, dup := members[kind]; dup {
			return nil, apperrors.NewArchiveInvalidError(
				fmt.Sprintf("members %q and %q are both %s", prev.Name, name, kind))
		}
		members[kind] = f
	}

	var missing []string
	for _, kind := range []string{models.MemberSelfie, models.MemberLicense, models.MemberDetails} {
		if _, ok := members[kind]; !ok {
			ext := ".*"
			if kind == models.MemberDetails {
				ext = ".csv"
			}
			missing = append(missing, models.MemberName(applicationID, kind, ext))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperrors.NewArchiveMemberMissingError(strings.Join(missing, ", "))
	}
	return members, nil
}

func extract(f *zip.File, localPath string, limit int64) error {
	rc, err := f.Open()
	if err != nil {
		return apperrors.NewArchiveInvalidError(fmt.Sprintf("open member %q: %v", f.Name, err))
	}
	defer rc.Close()

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer out.Close()

	src := io.Reader(rc)
	if limit > 0 {
		src = io.LimitReader(rc, limit+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return apperrors.NewArchiveInvalidError(fmt.Sprintf("extract member %q: %v", f.Name, err))
	}
	if limit > 0 && n > limit {
		return apperrors.NewArchiveInvalidError(fmt.Sprintf("member %q exceeds %d bytes", f.Name, limit))
	}
	return nil
}
