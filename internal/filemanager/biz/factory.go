package biz

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CopyKeyPolicy 跨 bucket 复制时目标 key 的生成策略
type CopyKeyPolicy string

const (
	// CopyKeyPreserve 目标 key 与源 key 相同。来自不同 bucket 的同名 key 复制到同一目标 bucket 时会互相覆盖。
	CopyKeyPreserve CopyKeyPolicy = "preserve"
	// CopyKeyFresh 为副本生成新的 {entryId}/{objectId}{ext}
	CopyKeyFresh CopyKeyPolicy = "fresh"
)

// Valid 策略是否合法
func (p CopyKeyPolicy) Valid() bool {
	return p == CopyKeyPreserve || p == CopyKeyFresh
}

// EntryFactory 生成条目 id、对象 key 和元数据，不做任何 I/O
type EntryFactory struct {
	newID func() string
	now   func() time.Time
}

// FactoryOption EntryFactory 选项
type FactoryOption func(*EntryFactory)

// WithIDGenerator 替换 id 生成函数
func WithIDGenerator(gen func() string) FactoryOption {
	return func(f *EntryFactory) {
		f.newID = gen
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) FactoryOption {
	return func(f *EntryFactory) {
		f.now = now
	}
}

// NewEntryFactory 创建条目工厂
func NewEntryFactory(opts ...FactoryOption) *EntryFactory {
	f := &EntryFactory{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewUploadEntry 为一次上传生成对象 key 和目录条目
//
// key 形如 {entryId}/{objectId}{ext}，两个 id 分别生成。
func (f *EntryFactory) NewUploadEntry(fileName, contentType string, size int64, uploadedBy, bucket string) (string, *DirectoryEntry, error) {
	if fileName == "" {
		return "", nil, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if size < 0 {
		return "", nil, fmt.Errorf("%w: file size must be >= 0", ErrInvalidInput)
	}

	entryID := f.newID()
	ext := filepath.Ext(fileName)
	key := objectKey(entryID, f.newID(), ext)

	entry := &DirectoryEntry{
		ID:          entryID,
		FileName:    fileName,
		ObjectKey:   key,
		BucketName:  bucket,
		ContentType: contentType,
		FileSize:    size,
		UploadDate:  f.now().UTC(),
		UploadedBy:  uploadedBy,
		Metadata: map[string]string{
			MetaOriginalFileName: fileName,
			MetaExtension:        ext,
		},
	}
	return key, entry, nil
}

// NewCopyEntry 为复制到 destBucket 的副本生成新条目，源条目不会被修改
func (f *EntryFactory) NewCopyEntry(source *DirectoryEntry, destBucket, newObjectKey string) *DirectoryEntry {
	return &DirectoryEntry{
		ID:          f.newID(),
		FileName:    source.FileName,
		ObjectKey:   newObjectKey,
		BucketName:  destBucket,
		ContentType: source.ContentType,
		FileSize:    source.FileSize,
		UploadDate:  f.now().UTC(),
		UploadedBy:  source.UploadedBy,
		Metadata: map[string]string{
			MetaOriginalFileName: source.FileName,
			MetaExtension:        filepath.Ext(source.FileName),
			MetaCopiedFrom:       source.Location(),
		},
	}
}

// CopyObjectKey 按策略计算副本的目标 key
func (f *EntryFactory) CopyObjectKey(policy CopyKeyPolicy, source *DirectoryEntry) string {
	if policy == CopyKeyFresh {
		return objectKey(f.newID(), f.newID(), filepath.Ext(source.FileName))
	}
	return source.ObjectKey
}

func objectKey(entryID, objectID, ext string) string {
	return entryID + "/" + objectID + ext
}
