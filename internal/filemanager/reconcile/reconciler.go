package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Mode 对账模式
type Mode string

const (
	// ModeReport 只诊断和输出日志，不修改任何存储，也不出队
	ModeReport Mode = "report"
	// ModeRepair 出队并修复：删除孤儿对象，删除悬空条目
	ModeRepair Mode = "repair"
)

// Valid 是否为已知模式
func (m Mode) Valid() bool {
	return m == ModeReport || m == ModeRepair
}

// Outcome 单条记录的处理结果
type Outcome string

const (
	// OutcomeResolved 两个存储已经一致，无需处理
	OutcomeResolved Outcome = "resolved"
	// OutcomeRepaired 已修复
	OutcomeRepaired Outcome = "repaired"
	// OutcomeReported 确认不一致，report 模式下只记录
	OutcomeReported Outcome = "reported"
	// OutcomeFailed 诊断或修复时存储调用失败
	OutcomeFailed Outcome = "failed"
)

// Reconciler 检查并修复单条不一致记录
type Reconciler struct {
	objects biz.ObjectStore
	entries biz.EntryRepo
	mode    Mode
	logger  *logger.Logger
}

// NewReconciler 创建对账器
func NewReconciler(objects biz.ObjectStore, entries biz.EntryRepo, mode Mode, log *logger.Logger) *Reconciler {
	if !mode.Valid() {
		mode = ModeReport
	}
	if log == nil {
		log = logger.L()
	}
	return &Reconciler{
		objects: objects,
		entries: entries,
		mode:    mode,
		logger:  log.Named("reconciler"),
	}
}

// Mode 当前模式
func (r *Reconciler) Mode() Mode {
	return r.mode
}

// Reconcile 处理一条记录
func (r *Reconciler) Reconcile(ctx context.Context, inc *biz.Inconsistency) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch inc.Kind {
	case biz.OrphanObject:
		outcome, err = r.orphanObject(ctx, inc)
	case biz.DanglingEntry:
		outcome, err = r.danglingEntry(ctx, inc)
	default:
		return OutcomeFailed, fmt.Errorf("unknown inconsistency kind %q", inc.Kind)
	}

	fields := []zap.Field{
		zap.String("id", inc.ID),
		zap.String("kind", string(inc.Kind)),
		zap.String("entry_id", inc.EntryID),
		zap.String("bucket", inc.Bucket),
		zap.String("key", inc.Key),
		zap.String("outcome", string(outcome)),
	}
	switch outcome {
	case OutcomeFailed:
		r.logger.Error("对账失败", append(fields, zap.Int("attempts", inc.Attempts), zap.Error(err))...)
	case OutcomeReported:
		r.logger.Warn("确认存储不一致，等待修复", fields...)
	default:
		r.logger.Info("对账完成", fields...)
	}
	return outcome, err
}

// orphanObject 对象存在但没有条目引用
func (r *Reconciler) orphanObject(ctx context.Context, inc *biz.Inconsistency) (Outcome, error) {
	// key 被同 bucket 的某个条目引用时不能删除对象
	_, err := r.entries.FindByObjectKey(ctx, inc.Bucket, inc.Key)
	switch {
	case err == nil:
		return OutcomeResolved, nil
	case !errors.Is(err, biz.ErrEntryNotFound):
		return OutcomeFailed, err
	}

	if _, err := r.objects.Stat(ctx, inc.Bucket, inc.Key); err != nil {
		if errors.Is(err, biz.ErrObjectNotFound) {
			return OutcomeResolved, nil
		}
		return OutcomeFailed, err
	}

	if r.mode == ModeReport {
		return OutcomeReported, nil
	}
	if _, err := r.objects.Delete(ctx, inc.Bucket, inc.Key); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRepaired, nil
}

// danglingEntry 条目存在但对象已不存在
func (r *Reconciler) danglingEntry(ctx context.Context, inc *biz.Inconsistency) (Outcome, error) {
	entry, err := r.entries.FindByID(ctx, inc.EntryID)
	if err != nil {
		if errors.Is(err, biz.ErrEntryNotFound) {
			return OutcomeResolved, nil
		}
		return OutcomeFailed, err
	}

	if _, err := r.objects.Stat(ctx, entry.BucketName, entry.ObjectKey); err == nil {
		return OutcomeResolved, nil
	} else if !errors.Is(err, biz.ErrObjectNotFound) {
		return OutcomeFailed, err
	}

	if r.mode == ModeReport {
		return OutcomeReported, nil
	}
	if _, err := r.entries.DeleteByID(ctx, entry.ID); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRepaired, nil
}
