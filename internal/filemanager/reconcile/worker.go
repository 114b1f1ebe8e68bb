package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-manager-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// LockKey 同一时间只允许一个进程出队修复
const LockKey = "lock:filemanager:reconcile"

// Queue 对账记录队列，由 *RedisLedger 实现
type Queue interface {
	Pop(ctx context.Context) (*biz.Inconsistency, error)
	Peek(ctx context.Context, n int64) ([]*biz.Inconsistency, error)
	Requeue(ctx context.Context, inc *biz.Inconsistency) error
	Bury(ctx context.Context, inc *biz.Inconsistency) error
}

// Locker 分布式锁，由 *pkgredis.Client 实现
type Locker interface {
	WithLock(ctx context.Context, key string, expiration time.Duration, fn func() error) error
}

// OutcomeObserver 对账结果观测（指标）
type OutcomeObserver interface {
	ObserveReconcile(kind, outcome string)
}

// WorkerConfig 对账 Worker 配置
type WorkerConfig struct {
	Interval    time.Duration // 两次处理之间的间隔
	BatchSize   int           // 每次最多处理的记录数
	MaxAttempts int           // 超过后移入死信列表
	LockTTL     time.Duration
}

// DefaultWorkerConfig 默认配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    time.Minute,
		BatchSize:   100,
		MaxAttempts: 5,
		LockTTL:     5 * time.Minute,
	}
}

// Summary 一次处理的统计
type Summary struct {
	Processed int
	Resolved  int
	Repaired  int
	Reported  int
	Requeued  int
	Buried    int
	Failed    int
}

func (s *Summary) add(outcome Outcome) {
	s.Processed++
	switch outcome {
	case OutcomeResolved:
		s.Resolved++
	case OutcomeRepaired:
		s.Repaired++
	case OutcomeReported:
		s.Reported++
	case OutcomeFailed:
		s.Failed++
	}
}

// Worker 后台对账 Worker，不在请求路径上
type Worker struct {
	queue      Queue
	reconciler *Reconciler
	pool       *workerpool.Pool
	locker     Locker // 可为 nil
	observer   OutcomeObserver
	cfg        WorkerConfig
	logger     *logger.Logger

	wg      sync.WaitGroup
	stopCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWorker 创建对账 Worker
func NewWorker(
	queue Queue,
	reconciler *Reconciler,
	pool *workerpool.Pool,
	locker Locker,
	observer OutcomeObserver,
	cfg WorkerConfig,
	log *logger.Logger,
) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if log == nil {
		log = logger.L()
	}
	return &Worker{
		queue:      queue,
		reconciler: reconciler,
		pool:       pool,
		locker:     locker,
		observer:   observer,
		cfg:        cfg,
		logger:     log.Named("reconcile-worker"),
		stopCh:     make(chan struct{}),
	}
}

// Start 启动后台循环
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.logger.Info("starting reconcile worker",
		zap.String("mode", string(w.reconciler.Mode())),
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop 停止后台循环，等待当前批次完成
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.logger.Info("stopping reconcile worker")
	close(w.stopCh)
	w.wg.Wait()
	w.running = false
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := w.Drain(ctx)
			if err != nil {
				w.logger.Error("reconcile batch failed", zap.Error(err))
				continue
			}
			if summary.Processed > 0 {
				w.logger.Info("reconcile batch done", summaryFields(summary)...)
			}
		}
	}
}

// Drain 处理一批记录
//
// report 模式只查看不出队；repair 模式在分布式锁内出队处理，失败的记录重新入队，
// 超过最大尝试次数的移入死信列表。
func (w *Worker) Drain(ctx context.Context) (Summary, error) {
	if w.reconciler.Mode() == ModeReport {
		return w.report(ctx)
	}

	if w.locker == nil {
		return w.repair(ctx)
	}

	var summary Summary
	err := w.locker.WithLock(ctx, LockKey, w.cfg.LockTTL, func() error {
		var err error
		summary, err = w.repair(ctx)
		return err
	})
	if errors.Is(err, pkgredis.ErrLockNotHeld) {
		w.logger.Debug("another process is reconciling, skipping")
		return Summary{}, nil
	}
	return summary, err
}

func (w *Worker) report(ctx context.Context) (Summary, error) {
	records, err := w.queue.Peek(ctx, int64(w.cfg.BatchSize))
	if err != nil {
		return Summary{}, err
	}
	return w.process(ctx, records, false), nil
}

func (w *Worker) repair(ctx context.Context) (Summary, error) {
	records := make([]*biz.Inconsistency, 0, w.cfg.BatchSize)
	for len(records) < w.cfg.BatchSize {
		inc, err := w.queue.Pop(ctx)
		if err != nil {
			// 已出队的记录仍然要处理，否则会丢失
			w.logger.Error("failed to pop inconsistency", zap.Error(err))
			break
		}
		if inc == nil {
			break
		}
		records = append(records, inc)
	}
	return w.process(ctx, records, true), nil
}

// process 在 worker pool 上并发处理记录
func (w *Worker) process(ctx context.Context, records []*biz.Inconsistency, dequeued bool) Summary {
	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)

	for _, inc := range records {
		inc := inc
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcome, err := w.reconciler.Reconcile(ctx, inc)
			if w.observer != nil {
				w.observer.ObserveReconcile(string(inc.Kind), string(outcome))
			}

			mu.Lock()
			summary.add(outcome)
			mu.Unlock()

			if outcome != OutcomeFailed || !dequeued {
				return
			}
			w.retry(ctx, inc, err, &mu, &summary)
		}
		if err := w.pool.Submit(task); err != nil {
			w.logger.Error("failed to submit reconcile task", zap.String("id", inc.ID), zap.Error(err))
			task()
		}
	}

	wg.Wait()
	return summary
}

// retry 失败记录重新入队，超过最大尝试次数移入死信
func (w *Worker) retry(ctx context.Context, inc *biz.Inconsistency, cause error, mu *sync.Mutex, summary *Summary) {
	// ctx 取消后也要把已出队的记录放回去
	qctx := context.WithoutCancel(ctx)

	if inc.Attempts+1 >= w.cfg.MaxAttempts {
		if err := w.queue.Bury(qctx, inc); err != nil {
			w.logger.Error("failed to bury inconsistency", zap.String("id", inc.ID), zap.Error(err))
			return
		}
		w.logger.Error("inconsistency moved to dead letter queue",
			zap.String("id", inc.ID),
			zap.Int("attempts", inc.Attempts+1),
			zap.NamedError("cause", cause),
		)
		mu.Lock()
		summary.Buried++
		mu.Unlock()
		return
	}

	if err := w.queue.Requeue(qctx, inc); err != nil {
		w.logger.Error("failed to requeue inconsistency", zap.String("id", inc.ID), zap.Error(err))
		return
	}
	mu.Lock()
	summary.Requeued++
	mu.Unlock()
}

func summaryFields(s Summary) []zap.Field {
	return []zap.Field{
		zap.Int("processed", s.Processed),
		zap.Int("resolved", s.Resolved),
		zap.Int("repaired", s.Repaired),
		zap.Int("reported", s.Reported),
		zap.Int("requeued", s.Requeued),
		zap.Int("buried", s.Buried),
		zap.Int("failed", s.Failed),
	}
}
