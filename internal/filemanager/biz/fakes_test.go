package biz

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"
)

type objKey struct{ bucket, key string }

type storedBlob struct {
	data        []byte
	contentType string
}

// fakeObjectStore 内存对象存储，支持注入错误并统计调用次数
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[objKey]storedBlob

	putErr    error
	getErr    error
	deleteErr error
	copyErr   error

	calls map[string]int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: make(map[objKey]storedBlob),
		calls:   make(map[string]int),
	}
}

func (s *fakeObjectStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeObjectStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *fakeObjectStore) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objKey{bucket, key}]
	return ok
}

func (s *fakeObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (StoreStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["put"]++
	if s.putErr != nil {
		return StoreStatus{}, s.putErr
	}
	if err := ctx.Err(); err != nil {
		return StoreStatus{}, err
	}
	s.objects[objKey{bucket, key}] = storedBlob{data: append([]byte(nil), data...), contentType: contentType}
	return StoreStatus{StatusCode: 200}, nil
}

func (s *fakeObjectStore) Get(_ context.Context, bucket, key string) (*StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["get"]++
	if s.getErr != nil {
		return nil, s.getErr
	}
	blob, ok := s.objects[objKey{bucket, key}]
	if !ok {
		return nil, &StoreError{Store: StoreObject, Op: "get", Code: "NoSuchKey", StatusCode: 404, Err: ErrObjectNotFound}
	}
	return &StoredObject{
		Body:        io.NopCloser(bytes.NewReader(blob.data)),
		ContentType: blob.contentType,
		Size:        int64(len(blob.data)),
	}, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, bucket, key string) (StoreStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["delete"]++
	if s.deleteErr != nil {
		return StoreStatus{}, s.deleteErr
	}
	delete(s.objects, objKey{bucket, key})
	return StoreStatus{StatusCode: 204}, nil
}

func (s *fakeObjectStore) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) (StoreStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["copy"]++
	if s.copyErr != nil {
		return StoreStatus{}, s.copyErr
	}
	blob, ok := s.objects[objKey{srcBucket, srcKey}]
	if !ok {
		return StoreStatus{}, &StoreError{Store: StoreObject, Op: "copy", Code: "NoSuchKey", StatusCode: 404, Err: ErrObjectNotFound}
	}
	s.objects[objKey{dstBucket, dstKey}] = blob
	return StoreStatus{StatusCode: 200}, nil
}

func (s *fakeObjectStore) Stat(_ context.Context, bucket, key string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["stat"]++
	blob, ok := s.objects[objKey{bucket, key}]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(blob.data)), ContentType: blob.contentType}, nil
}

// fakeEntryRepo 内存目录条目仓储
type fakeEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*DirectoryEntry

	insertErr error
	findErr   error
	deleteErr error
	// deleteNoop 为 true 时 DeleteByID 返回 false 且不删除
	deleteNoop bool

	calls map[string]int
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{
		entries: make(map[string]*DirectoryEntry),
		calls:   make(map[string]int),
	}
}

func (r *fakeEntryRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeEntryRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *fakeEntryRepo) Insert(_ context.Context, entry *DirectoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["insert"]++
	if r.insertErr != nil {
		return r.insertErr
	}
	r.entries[entry.ID] = entry.Clone()
	return nil
}

func (r *fakeEntryRepo) FindByID(_ context.Context, id string) (*DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["find_by_id"]++
	if r.findErr != nil {
		return nil, r.findErr
	}
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e.Clone(), nil
}

func (r *fakeEntryRepo) FindByObjectKey(_ context.Context, bucket, key string) (*DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["find_by_key"]++
	if r.findErr != nil {
		return nil, r.findErr
	}
	var found *DirectoryEntry
	for _, e := range r.entries {
		if e.ObjectKey != key || (bucket != "" && e.BucketName != bucket) {
			continue
		}
		if found == nil || e.UploadDate.Before(found.UploadDate) {
			found = e
		}
	}
	if found == nil {
		return nil, ErrEntryNotFound
	}
	return found.Clone(), nil
}

func (r *fakeEntryRepo) FindAll(context.Context) ([]*DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["find_all"]++
	if r.findErr != nil {
		return nil, r.findErr
	}
	out := make([]*DirectoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadDate.Before(out[j].UploadDate) })
	return out, nil
}

func (r *fakeEntryRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["delete"]++
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	if r.deleteNoop {
		return false, nil
	}
	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records []*Inconsistency
	err     error
	ctxErr  error
}

func (l *fakeLedger) Record(ctx context.Context, inc *Inconsistency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErr = ctx.Err()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, inc)
	return nil
}

type observation struct {
	op, result string
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (o *fakeObserver) ObserveOperation(op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{op, result})
}

// sequentialIDs 返回确定性的 id 生成器
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

// tickingClock 每次调用前进一秒
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
