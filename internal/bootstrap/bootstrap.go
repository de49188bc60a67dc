// Package bootstrap builds the shared services and stage handlers from config.
// The worker manager and the storage-event trigger both start here.
package bootstrap

import (
	"context"
	"fmt"

	"license-verification/internal/common/audit"
	awsclients "license-verification/internal/common/aws"
	"license-verification/internal/common/config"
	"license-verification/internal/common/database"
	apphttp "license-verification/internal/common/http"
	"license-verification/internal/common/logger"
	"license-verification/internal/common/notify"
	"license-verification/internal/common/observability"
	"license-verification/internal/common/queue"
	"license-verification/internal/common/storage"
	"license-verification/internal/pipeline"
	"license-verification/internal/recordstore"
	comparedetails "license-verification/internal/workers/verification/compare-details"
	comparefaces "license-verification/internal/workers/verification/compare-faces"
	recordclaim "license-verification/internal/workers/verification/record-claim"
	"license-verification/internal/workers/verification/stage"
	thirdpartyvalidation "license-verification/internal/workers/verification/third-party-validation"
	unziparchive "license-verification/internal/workers/verification/unzip-archive"
)

type Services struct {
	Config   *config.Config
	AWS      *awsclients.Clients
	Objects  storage.ObjectStore
	Store    recordstore.Store
	Notifier notify.Notifier
	Audit    audit.Recorder
	Obs      *observability.Observability
	// Checks are the backends readiness depends on.
	Checks []database.Pinger

	logger  logger.Logger
	closers []func() error
}

// Handlers are the stage handlers, one per task type.
type Handlers struct {
	Stager     *unziparchive.Handler
	Claims     *recordclaim.Handler
	Faces      *comparefaces.Handler
	Details    *comparedetails.Handler
	ThirdParty *thirdpartyvalidation.Handler
}

// New connects every backend cfg selects. obs may be nil.
func New(ctx context.Context, cfg *config.Config, obs *observability.Observability, log logger.Logger) (*Services, error) {
	clients, err := awsclients.NewClients(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}
	return NewWithClients(ctx, cfg, clients, obs, log)
}

// NewWithClients is New with the AWS clients supplied by the caller.
func NewWithClients(ctx context.Context, cfg *config.Config, clients *awsclients.Clients, obs *observability.Observability, log logger.Logger) (*Services, error) {
	s := &Services{Config: cfg, AWS: clients, Obs: obs, logger: log}

	if err := s.initObjects(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.initStore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.initAudit(); err != nil {
		s.Close()
		return nil, err
	}
	s.Notifier = newNotifier(cfg, clients)

	log.Info("services initialized", map[string]interface{}{
		"storage":     s.Objects.Backend(),
		"recordStore": cfg.RecordStore.Backend,
		"audit":       cfg.Audit.Enabled,
	})
	return s, nil
}

func (s *Services) initObjects(ctx context.Context) error {
	switch s.Config.Storage.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCSStore(ctx)
		if err != nil {
			return err
		}
		s.Objects = gcs
		s.closers = append(s.closers, gcs.Close)
	default:
		s.Objects = storage.NewS3Store(s.AWS.S3)
	}
	return nil
}

func (s *Services) initStore(ctx context.Context) error {
	switch s.Config.RecordStore.Backend {
	case config.RecordStorePostgres:
		pg, err := database.NewPostgres(s.Config.Database.Postgres)
		if err != nil {
			return err
		}
		s.Checks = append(s.Checks, pg)
		s.closers = append(s.closers, pg.Close)
		store := recordstore.NewPostgresStore(pg.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		s.Store = store
	case config.RecordStoreRedis:
		rdb := database.NewRedis(s.Config.Database.Redis)
		s.Store = recordstore.NewRedisStore(rdb.Client, s.Config.RecordStore.KeyPrefix)
		s.Checks = append(s.Checks, rdb)
		s.closers = append(s.closers, rdb.Close)
	case config.RecordStoreDynamoDB:
		s.Store = recordstore.NewDynamoStore(s.AWS.DynamoDB, s.Config.RecordStore.Table)
	default:
		return fmt.Errorf("unknown record store backend %q", s.Config.RecordStore.Backend)
	}
	return nil
}

func (s *Services) initAudit() error {
	if !s.Config.Audit.Enabled {
		s.Audit = audit.Noop{}
		return nil
	}
	es, err := database.NewElasticsearch(s.Config.Database.Elasticsearch)
	if err != nil {
		return err
	}
	s.Audit = audit.NewElasticsearchRecorder(es.Client, s.Config.Audit.Index)
	s.Checks = append(s.Checks, es)
	return nil
}

func newNotifier(cfg *config.Config, clients *awsclients.Clients) notify.Notifier {
	var notifiers notify.Multi
	if cfg.Notifications.SNS.Enabled {
		notifiers = append(notifiers, notify.NewSNSNotifier(clients.SNS, cfg.Notifications.SNS.TopicARN))
	}
	if cfg.Notifications.SES.Enabled {
		notifiers = append(notifiers, notify.NewSESNotifier(clients.SES, cfg.Notifications.SES.FromEmail, cfg.Notifications.SES.Recipients))
	}
	if len(notifiers) == 0 {
		return notify.Noop{}
	}
	return notifiers
}

// Deps are the collaborators shared by every stage.
func (s *Services) Deps() stage.Deps {
	return stage.Deps{
		Store:    s.Store,
		Notifier: s.Notifier,
		Audit:    s.Audit,
		Obs:      s.Obs,
	}
}

// Handlers builds one handler per stage.
func (s *Services) Handlers() *Handlers {
	cfg := s.Config
	deps := s.Deps()
	tpCfg := thirdpartyvalidation.LoadConfig(cfg)

	return &Handlers{
		Stager:     unziparchive.NewHandler(unziparchive.LoadConfig(cfg), s.Objects, deps, s.logger),
		Claims:     recordclaim.NewHandler(recordclaim.LoadConfig(cfg), s.Objects, deps, s.logger),
		Faces:      comparefaces.NewHandler(comparefaces.LoadConfig(cfg), s.AWS.Rekognition, s.Objects, deps, s.logger),
		Details:    comparedetails.NewHandler(comparedetails.LoadConfig(cfg), s.AWS.Textract, s.Objects, deps, s.logger),
		ThirdParty: thirdpartyvalidation.NewHandler(tpCfg, apphttp.NewClient(tpCfg.RequestTimeout), deps, s.logger),
	}
}

// Pipeline wires h into an in-process pipeline.
func (s *Services) Pipeline(h *Handlers) *pipeline.Pipeline {
	stages := pipeline.Stages{
		Stager:     h.Stager,
		Claims:     h.Claims,
		Faces:      h.Faces,
		Details:    h.Details,
		ThirdParty: h.ThirdParty,
	}
	if s.Config.Verification.ThirdPartyMode == config.ThirdPartyQueue {
		stages.Queue = queue.NewProducer(s.AWS.SQS, s.Config.Queue.URL)
	}
	return pipeline.New(pipeline.LoadConfig(s.Config), stages, s.Obs, s.logger)
}

// QueueConsumer returns the consumer of the third-party validation queue, or
// nil when the queue is not enabled.
func (s *Services) QueueConsumer() *queue.Consumer {
	if !s.Config.Queue.Enabled || s.Config.Queue.URL == "" {
		return nil
	}
	return queue.NewConsumer(s.AWS.SQS, queue.ConsumerConfig{
		QueueURL:          s.Config.Queue.URL,
		WaitTimeSeconds:   s.Config.Queue.WaitTimeSeconds,
		MaxMessages:       s.Config.Queue.MaxMessages,
		VisibilityTimeout: s.Config.Queue.VisibilityTimeout,
	}, s.logger)
}

// Close releases every backend connection.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", map[string]interface{}{"error": err.Error()})
		}
	}
}
