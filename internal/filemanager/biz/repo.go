package biz

import (
	"context"
	"io"
	"time"
)

// StoreStatus 对象存储返回的状态
type StoreStatus struct {
	StatusCode int
	Message    string
}

// StoredObject 从对象存储读取到的对象
type StoredObject struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectInfo 对象元信息
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// ObjectStore 对象存储接口（MinIO / S3）
//
// 失败时返回 *StoreError；对象不存在时返回的错误满足 errors.Is(err, ErrObjectNotFound)。
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (StoreStatus, error)
	Get(ctx context.Context, bucket, key string) (*StoredObject, error)
	// Delete 删除不存在的对象视为成功
	Delete(ctx context.Context, bucket, key string) (StoreStatus, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (StoreStatus, error)
	// Stat 仅供对账使用
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// EntryRepo 目录条目仓储接口（MongoDB / PostgreSQL）
//
// 查询不到时返回 ErrEntryNotFound。
type EntryRepo interface {
	Insert(ctx context.Context, entry *DirectoryEntry) error
	FindByID(ctx context.Context, id string) (*DirectoryEntry, error)
	// FindByObjectKey bucket 为空时匹配任意 bucket，多条时返回最早上传的一条
	FindByObjectKey(ctx context.Context, bucket, key string) (*DirectoryEntry, error)
	FindAll(ctx context.Context) ([]*DirectoryEntry, error)
	// DeleteByID 返回是否真的删除了一条记录
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// InconsistencyKind 两个存储之间的不一致类型
type InconsistencyKind string

const (
	// OrphanObject 对象存在但没有目录条目引用（上传/复制的元数据写入失败）
	OrphanObject InconsistencyKind = "orphan_object"
	// DanglingEntry 目录条目存在但对象已不存在（删除的元数据步骤失败，或下载发现对象丢失）
	DanglingEntry InconsistencyKind = "dangling_entry"
)

// Inconsistency 一条待对账记录
type Inconsistency struct {
	ID         string            `json:"id"`
	Kind       InconsistencyKind `json:"kind"`
	Op         string            `json:"op"`
	EntryID    string            `json:"entry_id,omitempty"`
	Bucket     string            `json:"bucket"`
	Key        string            `json:"key"`
	Detail     string            `json:"detail,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
	Attempts   int               `json:"attempts"`
}

// Ledger 记录不一致，供带外对账任务处理
type Ledger interface {
	Record(ctx context.Context, inc *Inconsistency) error
}

// Observer 操作结果观测（指标）
type Observer interface {
	ObserveOperation(op, result string, elapsed time.Duration)
}
