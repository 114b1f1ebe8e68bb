package data

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
)

// MemoryObjectStore 进程内对象存储，用于本地开发和测试
type MemoryObjectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

var _ biz.ObjectStore = (*MemoryObjectStore)(nil)

// NewMemoryObjectStore 创建进程内对象存储，bucket 在首次写入时创建
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{buckets: make(map[string]map[string]memoryObject)}
}

func (s *MemoryObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (biz.StoreStatus, error) {
	if err := ctx.Err(); err != nil {
		return biz.StoreStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]memoryObject)
		s.buckets[bucket] = b
	}
	b[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return biz.StoreStatus{StatusCode: http.StatusOK}, nil
}

func (s *MemoryObjectStore) Get(ctx context.Context, bucket, key string) (*biz.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, err := s.lookup("get", bucket, key)
	if err != nil {
		return nil, err
	}
	return &biz.StoredObject{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (s *MemoryObjectStore) Delete(ctx context.Context, bucket, key string) (biz.StoreStatus, error) {
	if err := ctx.Err(); err != nil {
		return biz.StoreStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return biz.StoreStatus{StatusCode: http.StatusNoContent}, nil
}

func (s *MemoryObjectStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (biz.StoreStatus, error) {
	if err := ctx.Err(); err != nil {
		return biz.StoreStatus{}, err
	}
	obj, err := s.lookup("copy", srcBucket, srcKey)
	if err != nil {
		return biz.StoreStatus{}, err
	}
	return s.Put(ctx, dstBucket, dstKey, obj.data, obj.contentType)
}

func (s *MemoryObjectStore) Stat(ctx context.Context, bucket, key string) (*biz.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, err := s.lookup("stat", bucket, key)
	if err != nil {
		return nil, err
	}
	return &biz.ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (s *MemoryObjectStore) lookup(op, bucket, key string) (memoryObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return memoryObject{}, &biz.StoreError{
			Store:      biz.StoreObject,
			Op:         op,
			Code:       "NoSuchKey",
			StatusCode: http.StatusNotFound,
			Message:    "The specified key does not exist.",
			Err:        biz.ErrObjectNotFound,
		}
	}
	return obj, nil
}

// MemoryEntryRepo 进程内目录条目仓储
type MemoryEntryRepo struct {
	mu      sync.RWMutex
	entries map[string]*biz.DirectoryEntry
}

var _ biz.EntryRepo = (*MemoryEntryRepo)(nil)

// NewMemoryEntryRepo 创建进程内目录条目仓储
func NewMemoryEntryRepo() *MemoryEntryRepo {
	return &MemoryEntryRepo{entries: make(map[string]*biz.DirectoryEntry)}
}

func (r *MemoryEntryRepo) Insert(ctx context.Context, entry *biz.DirectoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.ID]; exists {
		return &biz.StoreError{Store: biz.StoreMetadata, Op: "insert", Code: "DuplicateKey", Message: "entry " + entry.ID + " already exists"}
	}
	r.entries[entry.ID] = entry.Clone()
	return nil
}

func (r *MemoryEntryRepo) FindByID(ctx context.Context, id string) (*biz.DirectoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, biz.ErrEntryNotFound
	}
	return e.Clone(), nil
}

func (r *MemoryEntryRepo) FindByObjectKey(ctx context.Context, bucket, key string) (*biz.DirectoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *biz.DirectoryEntry
	for _, e := range r.entries {
		if e.ObjectKey != key || (bucket != "" && e.BucketName != bucket) {
			continue
		}
		if found == nil || e.UploadDate.Before(found.UploadDate) {
			found = e
		}
	}
	if found == nil {
		return nil, biz.ErrEntryNotFound
	}
	return found.Clone(), nil
}

func (r *MemoryEntryRepo) FindAll(ctx context.Context) ([]*biz.DirectoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*biz.DirectoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadDate.Before(out[j].UploadDate)
	})
	return out, nil
}

func (r *MemoryEntryRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}
