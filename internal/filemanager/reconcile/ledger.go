package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-manager-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

const (
	// InconsistencyQueue 待对账记录，LPUSH 写入，RPOP 取出
	InconsistencyQueue = "queue:filemanager:inconsistency"
	// DeadLetterQueue 超过最大尝试次数的记录
	DeadLetterQueue = "queue:filemanager:inconsistency:dead"
)

// ListClient 账本用到的 Redis 列表操作，由 *pkgredis.Client 实现
type ListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	RPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// RedisLedger 基于 Redis 列表的对账记录账本
type RedisLedger struct {
	client ListClient
	logger *logger.Logger
}

var _ biz.Ledger = (*RedisLedger)(nil)

// NewRedisLedger 创建账本
func NewRedisLedger(client ListClient, log *logger.Logger) *RedisLedger {
	if log == nil {
		log = logger.L()
	}
	return &RedisLedger{client: client, logger: log.Named("ledger")}
}

// Record 写入一条不一致记录
func (l *RedisLedger) Record(ctx context.Context, inc *biz.Inconsistency) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now().UTC()
	}
	if err := l.push(ctx, InconsistencyQueue, inc); err != nil {
		return err
	}

	l.logger.Info("不一致记录已入账",
		zap.String("id", inc.ID),
		zap.String("kind", string(inc.Kind)),
		zap.String("bucket", inc.Bucket),
		zap.String("key", inc.Key),
	)
	return nil
}

// Pop 取出最早的一条记录，账本为空时返回 (nil, nil)
func (l *RedisLedger) Pop(ctx context.Context) (*biz.Inconsistency, error) {
	raw, err := l.client.RPop(ctx, InconsistencyQueue)
	if err != nil {
		if pkgredis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop inconsistency: %w", err)
	}

	var inc biz.Inconsistency
	if err := json.Unmarshal([]byte(raw), &inc); err != nil {
		// 无法解析的记录直接丢弃，避免阻塞后续记录
		l.logger.Error("丢弃无法解析的对账记录", zap.String("raw", raw), zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal inconsistency: %w", err)
	}
	return &inc, nil
}

// Peek 按入账顺序查看最早的 n 条记录，不出队
func (l *RedisLedger) Peek(ctx context.Context, n int64) ([]*biz.Inconsistency, error) {
	if n <= 0 {
		return nil, nil
	}
	raws, err := l.client.LRange(ctx, InconsistencyQueue, -n, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to peek inconsistencies: %w", err)
	}

	out := make([]*biz.Inconsistency, 0, len(raws))
	// 列表尾部是最早入账的记录
	for i := len(raws) - 1; i >= 0; i-- {
		var inc biz.Inconsistency
		if err := json.Unmarshal([]byte(raws[i]), &inc); err != nil {
			l.logger.Warn("跳过无法解析的对账记录", zap.Error(err))
			continue
		}
		out = append(out, &inc)
	}
	return out, nil
}

// Requeue 尝试次数加一后重新入账
func (l *RedisLedger) Requeue(ctx context.Context, inc *biz.Inconsistency) error {
	inc.Attempts++
	return l.push(ctx, InconsistencyQueue, inc)
}

// Bury 移入死信列表，需要人工处理
func (l *RedisLedger) Bury(ctx context.Context, inc *biz.Inconsistency) error {
	return l.push(ctx, DeadLetterQueue, inc)
}

// Pending 待处理记录数
func (l *RedisLedger) Pending(ctx context.Context) (int64, error) {
	return l.client.LLen(ctx, InconsistencyQueue)
}

func (l *RedisLedger) push(ctx context.Context, key string, inc *biz.Inconsistency) error {
	payload, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("failed to marshal inconsistency: %w", err)
	}
	if _, err := l.client.LPush(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("failed to push inconsistency: %w", err)
	}
	return nil
}

// LogLedger 未启用 Redis 时使用，只输出错误日志
type LogLedger struct {
	logger *logger.Logger
}

var _ biz.Ledger = (*LogLedger)(nil)

// NewLogLedger 创建日志账本
func NewLogLedger(log *logger.Logger) *LogLedger {
	if log == nil {
		log = logger.L()
	}
	return &LogLedger{logger: log.Named("ledger")}
}

func (l *LogLedger) Record(ctx context.Context, inc *biz.Inconsistency) error {
	l.logger.WithContext(ctx).Error("检测到存储不一致（未启用对账账本）",
		zap.String("kind", string(inc.Kind)),
		zap.String("op", inc.Op),
		zap.String("entry_id", inc.EntryID),
		zap.String("bucket", inc.Bucket),
		zap.String("key", inc.Key),
		zap.String("detail", inc.Detail),
	)
	return nil
}
