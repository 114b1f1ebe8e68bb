package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/file-manager-backend/internal/conf"
	"github.com/lk2023060901/file-manager-backend/internal/data"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/reconcile"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/service"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/metrics"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/file-manager-backend/internal/server"
	"go.uber.org/zap"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	dataProviderSet,
	useCaseProviderSet,
	serviceProviderSet,
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideObjectStore,
	provideEntryRepo,
	provideLedger,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	metrics.New,
	provideObserver,
	provideFileUseCase,
)

// HTTP service providers
var serviceProviderSet = wire.NewSet(
	providePendingCounter,
	provideFileService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewGRPCServer,
	provideReconcileWorker,
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideObjectStore(d *data.Data) biz.ObjectStore {
	return d.Objects
}

func provideEntryRepo(d *data.Data) biz.EntryRepo {
	return d.Entries
}

// provideLedger 启用对账时写 Redis，否则只记日志
func provideLedger(d *data.Data, log *logger.Logger) biz.Ledger {
	if d.Redis != nil {
		return reconcile.NewRedisLedger(d.Redis, log)
	}
	return reconcile.NewLogLedger(log)
}

func provideObserver(m *metrics.Metrics) biz.Observer {
	return m
}

func provideFileUseCase(
	objects biz.ObjectStore,
	entries biz.EntryRepo,
	ledger biz.Ledger,
	observer biz.Observer,
	config *conf.Config,
	log *logger.Logger,
) *biz.FileUseCase {
	return biz.NewFileUseCase(objects, entries, nil, ledger, observer, biz.Options{
		DefaultBucket:   config.Storage.DefaultBucket,
		DefaultUploader: config.Files.DefaultUploader,
		CopyKeyPolicy:   biz.CopyKeyPolicy(config.Files.CopyKeyPolicy),
		RecordTimeout:   config.Files.RecordTimeout,
	}, log)
}

// providePendingCounter 只有 Redis 账本能统计积压
func providePendingCounter(ledger biz.Ledger) service.PendingCounter {
	if l, ok := ledger.(*reconcile.RedisLedger); ok {
		return l
	}
	return nil
}

func provideFileService(
	uc *biz.FileUseCase,
	pending service.PendingCounter,
	config *conf.Config,
	log *logger.Logger,
) *service.FileService {
	return service.NewFileService(uc, pending, config.Files.MaxUploadSize, log)
}

// provideReconcileWorker 未启用对账时返回 nil
func provideReconcileWorker(
	config *conf.Config,
	d *data.Data,
	ledger biz.Ledger,
	m *metrics.Metrics,
	log *logger.Logger,
) (*reconcile.Worker, func(), error) {
	queue, ok := ledger.(*reconcile.RedisLedger)
	if !config.Reconcile.Enabled || !ok {
		return nil, func() {}, nil
	}

	return NewReconcileWorker(config, d, queue, m, log, reconcile.Mode(config.Reconcile.Mode))
}

// NewReconcileWorker 创建对账 Worker 及其 worker pool，cmd/reconcile 也使用它
func NewReconcileWorker(
	config *conf.Config,
	d *data.Data,
	queue *reconcile.RedisLedger,
	observer reconcile.OutcomeObserver,
	log *logger.Logger,
	mode reconcile.Mode,
) (*reconcile.Worker, func(), error) {
	pool, err := workerpool.New(&workerpool.Config{Workers: config.Reconcile.Workers}, log.Logger)
	if err != nil {
		return nil, nil, err
	}

	reconciler := reconcile.NewReconciler(d.Objects, d.Entries, mode, log)
	worker := reconcile.NewWorker(queue, reconciler, pool, d.Redis, observer, reconcile.WorkerConfig{
		Interval:    config.Reconcile.Interval,
		BatchSize:   config.Reconcile.BatchSize,
		MaxAttempts: config.Reconcile.MaxAttempts,
		LockTTL:     config.Reconcile.LockTTL,
	}, log)

	cleanup := func() {
		worker.Stop()
		pool.Shutdown()
		log.Info("reconcile worker pool closed", zap.Any("stats", pool.Stats()))
	}
	return worker, cleanup, nil
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	grpcServer *server.GRPCServer,
	reconcileWorker *reconcile.Worker,
) *App {
	return &App{
		Config:          config,
		Logger:          log,
		HTTPServer:      httpServer,
		GRPCServer:      grpcServer,
		ReconcileWorker: reconcileWorker,
	}
}
