package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/data"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-manager-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeList 内存实现的 Redis 列表，下标 0 为列表头部
type fakeList struct {
	mu    sync.Mutex
	lists map[string][]string
	err   error
}

func newFakeList() *fakeList {
	return &fakeList{lists: make(map[string][]string)}
}

func (f *fakeList) LPush(_ context.Context, key string, values ...interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return int64(len(f.lists[key])), nil
}

func (f *fakeList) RPop(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	l := f.lists[key]
	if len(l) == 0 {
		return "", pkgredis.ErrNil
	}
	v := l[len(l)-1]
	f.lists[key] = l[:len(l)-1]
	return v, nil
}

func (f *fakeList) LLen(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.lists[key])), nil
}

func (f *fakeList) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	l := f.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	return append([]string(nil), l[start:stop+1]...), nil
}

func (f *fakeList) len(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

type fakeLocker struct {
	held  bool
	calls int
}

func (l *fakeLocker) WithLock(_ context.Context, _ string, _ time.Duration, fn func() error) error {
	l.calls++
	if l.held {
		return pkgredis.ErrLockNotHeld
	}
	return fn()
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *outcomeRecorder) ObserveReconcile(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[kind+"/"+outcome]++
}

// statFailing 让 Stat 返回后端错误
type statFailing struct {
	biz.ObjectStore
}

func (statFailing) Stat(context.Context, string, string) (*biz.ObjectInfo, error) {
	return nil, &biz.StoreError{Store: biz.StoreObject, Op: "stat", Code: "SlowDown", StatusCode: 503}
}

type fixture struct {
	list    *fakeList
	ledger  *RedisLedger
	objects *data.MemoryObjectStore
	entries *data.MemoryEntryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	list := newFakeList()
	return &fixture{
		list:    list,
		ledger:  NewRedisLedger(list, logger.NewNop()),
		objects: data.NewMemoryObjectStore(),
		entries: data.NewMemoryEntryRepo(),
	}
}

func (f *fixture) worker(t *testing.T, objects biz.ObjectStore, mode Mode, locker Locker, observer OutcomeObserver, maxAttempts int) *Worker {
	t.Helper()
	pool, err := workerpool.New(&workerpool.Config{Workers: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	if objects == nil {
		objects = f.objects
	}
	rec := NewReconciler(objects, f.entries, mode, logger.NewNop())
	return NewWorker(f.ledger, rec, pool, locker, observer, WorkerConfig{BatchSize: 10, MaxAttempts: maxAttempts}, logger.NewNop())
}

func (f *fixture) putObject(t *testing.T, bucket, key string) {
	t.Helper()
	_, err := f.objects.Put(context.Background(), bucket, key, []byte("x"), "text/plain")
	require.NoError(t, err)
}

func (f *fixture) insertEntry(t *testing.T, id, bucket, key string) {
	t.Helper()
	require.NoError(t, f.entries.Insert(context.Background(), &biz.DirectoryEntry{
		ID:         id,
		FileName:   "a.txt",
		ObjectKey:  key,
		BucketName: bucket,
		UploadDate: time.Now(),
	}))
}

func (f *fixture) record(t *testing.T, inc *biz.Inconsistency) {
	t.Helper()
	require.NoError(t, f.ledger.Record(context.Background(), inc))
}

func TestRedisLedger_FIFO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k1"})
	f.record(t, &biz.Inconsistency{Kind: biz.DanglingEntry, Bucket: "b", Key: "k2", EntryID: "e2"})

	n, err := f.ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	peeked, err := f.ledger.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, peeked, 2)
	assert.Equal(t, "k1", peeked[0].Key)
	assert.Equal(t, "k2", peeked[1].Key)
	assert.NotEmpty(t, peeked[0].ID)
	assert.False(t, peeked[0].DetectedAt.IsZero())

	first, err := f.ledger.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", first.Key)

	require.NoError(t, f.ledger.Requeue(ctx, first))
	second, err := f.ledger.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", second.Key)

	again, err := f.ledger.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", again.Key)
	assert.Equal(t, 1, again.Attempts)

	empty, err := f.ledger.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRedisLedger_BackendError(t *testing.T) {
	f := newFixture(t)
	f.list.err = errors.New("connection refused")

	err := f.ledger.Record(context.Background(), &biz.Inconsistency{Kind: biz.OrphanObject})
	assert.Error(t, err)
	_, err = f.ledger.Pop(context.Background())
	assert.Error(t, err)
}

func TestRedisLedger_PopDropsGarbage(t *testing.T) {
	f := newFixture(t)
	_, _ = f.list.LPush(context.Background(), InconsistencyQueue, "not-json")

	_, err := f.ledger.Pop(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, f.list.len(InconsistencyQueue))
}

func TestReconciler(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		mode  Mode
		setup func(t *testing.T, f *fixture)
		inc   *biz.Inconsistency
		want  Outcome
		check func(t *testing.T, f *fixture)
	}{
		{
			name:  "orphan reported",
			mode:  ModeReport,
			setup: func(t *testing.T, f *fixture) { f.putObject(t, "b", "k") },
			inc:   &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"},
			want:  OutcomeReported,
			check: func(t *testing.T, f *fixture) {
				_, err := f.objects.Stat(ctx, "b", "k")
				assert.NoError(t, err)
			},
		},
		{
			name:  "orphan repaired",
			mode:  ModeRepair,
			setup: func(t *testing.T, f *fixture) { f.putObject(t, "b", "k") },
			inc:   &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"},
			want:  OutcomeRepaired,
			check: func(t *testing.T, f *fixture) {
				_, err := f.objects.Stat(ctx, "b", "k")
				assert.True(t, errors.Is(err, biz.ErrObjectNotFound))
			},
		},
		{
			name: "orphan key referenced by another entry is kept",
			mode: ModeRepair,
			setup: func(t *testing.T, f *fixture) {
				f.putObject(t, "b", "k")
				f.insertEntry(t, "e1", "b", "k")
			},
			inc:  &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"},
			want: OutcomeResolved,
			check: func(t *testing.T, f *fixture) {
				_, err := f.objects.Stat(ctx, "b", "k")
				assert.NoError(t, err)
			},
		},
		{
			name:  "orphan already gone",
			mode:  ModeRepair,
			setup: func(t *testing.T, f *fixture) {},
			inc:   &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"},
			want:  OutcomeResolved,
		},
		{
			name:  "dangling reported",
			mode:  ModeReport,
			setup: func(t *testing.T, f *fixture) { f.insertEntry(t, "e1", "b", "k") },
			inc:   &biz.Inconsistency{Kind: biz.DanglingEntry, EntryID: "e1", Bucket: "b", Key: "k"},
			want:  OutcomeReported,
			check: func(t *testing.T, f *fixture) {
				_, err := f.entries.FindByID(ctx, "e1")
				assert.NoError(t, err)
			},
		},
		{
			name:  "dangling repaired",
			mode:  ModeRepair,
			setup: func(t *testing.T, f *fixture) { f.insertEntry(t, "e1", "b", "k") },
			inc:   &biz.Inconsistency{Kind: biz.DanglingEntry, EntryID: "e1", Bucket: "b", Key: "k"},
			want:  OutcomeRepaired,
			check: func(t *testing.T, f *fixture) {
				_, err := f.entries.FindByID(ctx, "e1")
				assert.True(t, errors.Is(err, biz.ErrEntryNotFound))
			},
		},
		{
			name: "dangling entry whose object exists",
			mode: ModeRepair,
			setup: func(t *testing.T, f *fixture) {
				f.insertEntry(t, "e1", "b", "k")
				f.putObject(t, "b", "k")
			},
			inc:  &biz.Inconsistency{Kind: biz.DanglingEntry, EntryID: "e1", Bucket: "b", Key: "k"},
			want: OutcomeResolved,
		},
		{
			name:  "dangling entry already removed",
			mode:  ModeRepair,
			setup: func(t *testing.T, f *fixture) {},
			inc:   &biz.Inconsistency{Kind: biz.DanglingEntry, EntryID: "e1", Bucket: "b", Key: "k"},
			want:  OutcomeResolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)
			r := NewReconciler(f.objects, f.entries, tt.mode, logger.NewNop())

			got, err := r.Reconcile(ctx, tt.inc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestReconciler_UnknownKind(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.objects, f.entries, ModeRepair, logger.NewNop())
	got, err := r.Reconcile(context.Background(), &biz.Inconsistency{Kind: "mystery"})
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, got)
}

func TestNewReconciler_DefaultsToReport(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.objects, f.entries, "", logger.NewNop())
	assert.Equal(t, ModeReport, r.Mode())
}

func TestWorker_ReportDoesNotDequeue(t *testing.T) {
	f := newFixture(t)
	f.putObject(t, "b", "k")
	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"})

	obs := &outcomeRecorder{}
	w := f.worker(t, nil, ModeReport, &fakeLocker{}, obs, 3)

	summary, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Reported)
	assert.Equal(t, 1, f.list.len(InconsistencyQueue))
	assert.Equal(t, 1, obs.outcomes["orphan_object/reported"])
}

func TestWorker_RepairDrainsQueue(t *testing.T) {
	f := newFixture(t)
	f.putObject(t, "b", "orphan")
	f.insertEntry(t, "e1", "b", "dangling")
	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "orphan"})
	f.record(t, &biz.Inconsistency{Kind: biz.DanglingEntry, EntryID: "e1", Bucket: "b", Key: "dangling"})
	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "gone"})

	locker := &fakeLocker{}
	w := f.worker(t, nil, ModeRepair, locker, nil, 3)

	summary, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Repaired)
	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 1, locker.calls)
	assert.Equal(t, 0, f.list.len(InconsistencyQueue))
}

func TestWorker_RepairSkipsWhenLocked(t *testing.T) {
	f := newFixture(t)
	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"})

	w := f.worker(t, nil, ModeRepair, &fakeLocker{held: true}, nil, 3)
	summary, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, f.list.len(InconsistencyQueue))
}

func TestWorker_FailedRecordsAreRequeuedThenBuried(t *testing.T) {
	f := newFixture(t)
	f.record(t, &biz.Inconsistency{Kind: biz.OrphanObject, Bucket: "b", Key: "k"})

	w := f.worker(t, statFailing{f.objects}, ModeRepair, nil, nil, 2)

	summary, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, f.list.len(InconsistencyQueue))

	summary, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Buried)
	assert.Equal(t, 0, f.list.len(InconsistencyQueue))
	assert.Equal(t, 1, f.list.len(DeadLetterQueue))
}

func TestWorker_StartStop(t *testing.T) {
	f := newFixture(t)
	w := f.worker(t, nil, ModeReport, nil, nil, 3)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestLogLedger(t *testing.T) {
	l := NewLogLedger(logger.NewNop())
	assert.NoError(t, l.Record(context.Background(), &biz.Inconsistency{Kind: biz.DanglingEntry}))
}
