package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/database"
	"gorm.io/gorm"
)

// FileEntryPO 目录条目数据库模型
type FileEntryPO struct {
	ID          string    `gorm:"type:varchar(64);primarykey"`
	FileName    string    `gorm:"column:file_name;size:1024;not null"`
	ObjectKey   string    `gorm:"column:object_key;size:1024;not null;index:idx_file_entries_object_key;index:idx_file_entries_bucket_key,priority:2"`
	BucketName  string    `gorm:"column:bucket_name;size:255;not null;index:idx_file_entries_bucket_key,priority:1"`
	ContentType string    `gorm:"column:content_type;size:255"`
	FileSize    int64     `gorm:"column:file_size;not null"`
	UploadDate  time.Time `gorm:"column:upload_date;not null;index"`
	UploadedBy  string    `gorm:"column:uploaded_by;size:255"`
	Metadata    string    `gorm:"column:metadata;type:jsonb"`
}

func (FileEntryPO) TableName() string {
	return "file_entries"
}

func toFileEntryPO(e *biz.DirectoryEntry) (*FileEntryPO, error) {
	metadataJSON := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(b)
	}
	return &FileEntryPO{
		ID:          e.ID,
		FileName:    e.FileName,
		ObjectKey:   e.ObjectKey,
		BucketName:  e.BucketName,
		ContentType: e.ContentType,
		FileSize:    e.FileSize,
		UploadDate:  e.UploadDate.UTC(),
		UploadedBy:  e.UploadedBy,
		Metadata:    metadataJSON,
	}, nil
}

func (po *FileEntryPO) toBiz() (*biz.DirectoryEntry, error) {
	var metadata map[string]string
	if po.Metadata != "" {
		if err := json.Unmarshal([]byte(po.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", po.ID, err)
		}
	}
	return &biz.DirectoryEntry{
		ID:          po.ID,
		FileName:    po.FileName,
		ObjectKey:   po.ObjectKey,
		BucketName:  po.BucketName,
		ContentType: po.ContentType,
		FileSize:    po.FileSize,
		UploadDate:  po.UploadDate.UTC(),
		UploadedBy:  po.UploadedBy,
		Metadata:    metadata,
	}, nil
}

// GormEntryRepo 基于 PostgreSQL 的 biz.EntryRepo 实现
type GormEntryRepo struct {
	db *database.DB
}

var _ biz.EntryRepo = (*GormEntryRepo)(nil)

// NewGormEntryRepo 创建目录条目仓储
func NewGormEntryRepo(db *database.DB) *GormEntryRepo {
	return &GormEntryRepo{db: db}
}

// Migrate 建表和索引
func (r *GormEntryRepo) Migrate() error {
	return r.db.Migrate(&FileEntryPO{})
}

// Insert 插入条目
func (r *GormEntryRepo) Insert(ctx context.Context, entry *biz.DirectoryEntry) error {
	po, err := toFileEntryPO(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return classifyGormError("insert", err)
	}
	return nil
}

// FindByID 按 id 查询
func (r *GormEntryRepo) FindByID(ctx context.Context, id string) (*biz.DirectoryEntry, error) {
	var po FileEntryPO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrEntryNotFound
		}
		return nil, classifyGormError("find_by_id", err)
	}
	return po.toBiz()
}

// FindByObjectKey 按 object key 查询，bucket 为空时不过滤 bucket，多条时取最早上传的一条
func (r *GormEntryRepo) FindByObjectKey(ctx context.Context, bucket, key string) (*biz.DirectoryEntry, error) {
	var po FileEntryPO
	err := r.db.WithContext(ctx).
		Scopes(
			database.WhereIf(bucket != "", "bucket_name = ?", bucket),
			database.OrderBy("upload_date", false),
		).
		Where("object_key = ?", key).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrEntryNotFound
		}
		return nil, classifyGormError("find_by_object_key", err)
	}
	return po.toBiz()
}

// FindAll 返回全部条目，按上传时间升序
func (r *GormEntryRepo) FindAll(ctx context.Context) ([]*biz.DirectoryEntry, error) {
	var pos []*FileEntryPO
	if err := r.db.WithContext(ctx).Scopes(database.OrderBy("upload_date", false)).Find(&pos).Error; err != nil {
		return nil, classifyGormError("find_all", err)
	}

	entries := make([]*biz.DirectoryEntry, 0, len(pos))
	for _, po := range pos {
		e, err := po.toBiz()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteByID 删除条目，返回是否删除了记录
func (r *GormEntryRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&FileEntryPO{})
	if res.Error != nil {
		return false, classifyGormError("delete_by_id", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// classifyGormError 把 gorm / pgx 错误转换为 *biz.StoreError，SQLSTATE 作为错误码
func classifyGormError(op string, err error) error {
	se := &biz.StoreError{
		Store:   biz.StoreMetadata,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}

	var pgErr *pgconn.PgError
	switch {
	case biz.ContextCode(err) != "":
		se.Code = biz.ContextCode(err)
	case errors.As(err, &pgErr):
		se.Code = pgErr.Code
		se.Message = pgErr.Message
	case errors.Is(err, gorm.ErrDuplicatedKey):
		se.Code = "23505"
	default:
		se.Code = biz.CodeUnknown
	}
	return se
}
