package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// 操作名，用于日志、指标和不一致记录
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpDelete   = "delete"
	OpCopy     = "copy"
	OpGet      = "get"
	OpList     = "list"
)

const defaultRecordTimeout = 5 * time.Second

// Options 文件用例配置
type Options struct {
	DefaultBucket   string
	DefaultUploader string
	CopyKeyPolicy   CopyKeyPolicy
	// RecordTimeout 写入对账记录的超时时间，与请求 ctx 的取消无关
	RecordTimeout time.Duration
}

// UploadRequest 上传请求
type UploadRequest struct {
	Data         []byte
	FileName     string
	ContentType  string
	DeclaredSize int64 // <= 0 表示未声明
	UploadedBy   string
	Bucket       string // 为空时使用默认 bucket
}

// CopyRequest 跨 bucket 复制请求
type CopyRequest struct {
	SourceObjectKey   string
	SourceBucket      string
	DestinationBucket string
}

// FileUseCase 文件用例，协调对象存储和目录条目仓储
//
// 两个存储之间没有事务：先写对象再写元数据，删除时先删对象再删元数据。
// 第二步失败时不回滚，返回 PartialFailure 并写入对账记录。
type FileUseCase struct {
	objects  ObjectStore
	entries  EntryRepo
	factory  *EntryFactory
	ledger   Ledger
	observer Observer
	opts     Options
	logger   *logger.Logger
}

// NewFileUseCase 创建文件用例
func NewFileUseCase(
	objects ObjectStore,
	entries EntryRepo,
	factory *EntryFactory,
	ledger Ledger,
	observer Observer,
	opts Options,
	log *logger.Logger,
) *FileUseCase {
	if factory == nil {
		factory = NewEntryFactory()
	}
	if ledger == nil {
		ledger = nopLedger{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logger.L()
	}
	if opts.CopyKeyPolicy == "" {
		opts.CopyKeyPolicy = CopyKeyPreserve
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = defaultRecordTimeout
	}
	return &FileUseCase{
		objects:  objects,
		entries:  entries,
		factory:  factory,
		ledger:   ledger,
		observer: observer,
		opts:     opts,
		logger:   log.Named("filemanager"),
	}
}

// Upload 上传文件：写对象，再写目录条目
func (uc *FileUseCase) Upload(ctx context.Context, req *UploadRequest) (res Result) {
	defer uc.finish(ctx, OpUpload, time.Now(), &res)

	if req == nil {
		return &InvalidInput{Reason: "upload request is required"}
	}
	if len(req.Data) == 0 {
		return &InvalidInput{Reason: "file content is empty"}
	}
	if req.FileName == "" {
		return &InvalidInput{Reason: "file name is required"}
	}
	if req.DeclaredSize > 0 && req.DeclaredSize != int64(len(req.Data)) {
		return &InvalidInput{Reason: fmt.Sprintf("declared size %d does not match content length %d", req.DeclaredSize, len(req.Data))}
	}
	bucket := req.Bucket
	if bucket == "" {
		bucket = uc.opts.DefaultBucket
	}
	if bucket == "" {
		return &InvalidInput{Reason: "bucket is required"}
	}
	uploadedBy := req.UploadedBy
	if uploadedBy == "" {
		uploadedBy = uc.opts.DefaultUploader
	}

	key, entry, err := uc.factory.NewUploadEntry(req.FileName, req.ContentType, int64(len(req.Data)), uploadedBy, bucket)
	if err != nil {
		return &InvalidInput{Reason: err.Error()}
	}

	if _, err := uc.objects.Put(ctx, bucket, key, req.Data, req.ContentType); err != nil {
		return newBackendError(StoreObject, err)
	}

	if err := uc.entries.Insert(ctx, entry); err != nil {
		pf := &PartialFailure{
			Op:      OpUpload,
			Fault:   OrphanObject,
			EntryID: entry.ID,
			Bucket:  bucket,
			Key:     key,
			Detail:  "object stored but directory entry insert failed: " + err.Error(),
			Err:     err,
		}
		uc.record(ctx, pf)
		return pf
	}

	return &Success{Entry: entry}
}

// Download 按条目 id 读取对象
func (uc *FileUseCase) Download(ctx context.Context, id string) (res Result) {
	defer uc.finish(ctx, OpDownload, time.Now(), &res)

	if id == "" {
		return &InvalidInput{Reason: "id is required"}
	}

	entry, failure := uc.lookup(ctx, id)
	if failure != nil {
		return failure
	}

	obj, err := uc.objects.Get(ctx, entry.BucketName, entry.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			uc.record(ctx, &PartialFailure{
				Op:      OpDownload,
				Fault:   DanglingEntry,
				EntryID: entry.ID,
				Bucket:  entry.BucketName,
				Key:     entry.ObjectKey,
				Detail:  "directory entry references a missing object",
				Err:     err,
			})
			return &NotFound{
				Reason:  ObjectMissing,
				EntryID: entry.ID,
				Bucket:  entry.BucketName,
				Key:     entry.ObjectKey,
			}
		}
		return newBackendError(StoreObject, err)
	}

	contentType := entry.ContentType
	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	fileName := entry.FileName
	if original := entry.Metadata[MetaOriginalFileName]; original != "" {
		fileName = original
	}

	size := obj.Size
	if size <= 0 {
		size = entry.FileSize
	}

	return &Success{
		Entry: entry,
		Content: &Content{
			Body:        obj.Body,
			ContentType: contentType,
			FileName:    fileName,
			Size:        size,
		},
	}
}

// Delete 删除对象，再删除目录条目
func (uc *FileUseCase) Delete(ctx context.Context, id string) (res Result) {
	defer uc.finish(ctx, OpDelete, time.Now(), &res)

	if id == "" {
		return &InvalidInput{Reason: "id is required"}
	}

	entry, failure := uc.lookup(ctx, id)
	if failure != nil {
		return failure
	}

	// 对象已不存在由 ObjectStore.Delete 视为成功
	if _, err := uc.objects.Delete(ctx, entry.BucketName, entry.ObjectKey); err != nil {
		return newBackendError(StoreObject, err)
	}

	deleted, err := uc.entries.DeleteByID(ctx, entry.ID)
	if err != nil || !deleted {
		detail := "object deleted but directory entry was not removed"
		if err != nil {
			detail += ": " + err.Error()
		}
		pf := &PartialFailure{
			Op:      OpDelete,
			Fault:   DanglingEntry,
			EntryID: entry.ID,
			Bucket:  entry.BucketName,
			Key:     entry.ObjectKey,
			Detail:  detail,
			Err:     err,
		}
		uc.record(ctx, pf)
		return pf
	}

	return &Success{Entry: entry}
}

// Copy 把已登记的对象复制到另一个 bucket，并为副本创建新条目，源条目保持不变
func (uc *FileUseCase) Copy(ctx context.Context, req *CopyRequest) (res Result) {
	defer uc.finish(ctx, OpCopy, time.Now(), &res)

	if req == nil {
		return &InvalidInput{Reason: "copy request is required"}
	}
	if req.SourceObjectKey == "" || req.SourceBucket == "" || req.DestinationBucket == "" {
		return &InvalidInput{Reason: "source object key, source bucket and destination bucket are required"}
	}
	if req.SourceBucket == req.DestinationBucket && uc.opts.CopyKeyPolicy == CopyKeyPreserve {
		return &InvalidInput{Reason: "source and destination bucket must differ"}
	}

	source, err := uc.entries.FindByObjectKey(ctx, req.SourceBucket, req.SourceObjectKey)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return &NotFound{
				Reason: EntryMissing,
				Bucket: req.SourceBucket,
				Key:    req.SourceObjectKey,
			}
		}
		return newBackendError(StoreMetadata, err)
	}

	dstKey := uc.factory.CopyObjectKey(uc.opts.CopyKeyPolicy, source)

	existing, err := uc.entries.FindByObjectKey(ctx, req.DestinationBucket, dstKey)
	switch {
	case err == nil:
		uc.logger.WithContext(ctx).Warn("目标 key 已被登记，复制将覆盖对象",
			zap.String("op", OpCopy),
			zap.String("bucket", req.DestinationBucket),
			zap.String("key", dstKey),
			zap.String("existing_entry_id", existing.ID),
		)
	case !errors.Is(err, ErrEntryNotFound):
		// 仅用于告警，查询失败不影响复制
		uc.logger.WithContext(ctx).Debug("检查目标 key 失败", zap.Error(err))
	}

	if _, err := uc.objects.Copy(ctx, source.BucketName, source.ObjectKey, req.DestinationBucket, dstKey); err != nil {
		return newBackendError(StoreObject, err)
	}

	entry := uc.factory.NewCopyEntry(source, req.DestinationBucket, dstKey)
	if err := uc.entries.Insert(ctx, entry); err != nil {
		pf := &PartialFailure{
			Op:      OpCopy,
			Fault:   OrphanObject,
			EntryID: entry.ID,
			Bucket:  req.DestinationBucket,
			Key:     dstKey,
			Detail:  "object copied but directory entry insert failed: " + err.Error(),
			Err:     err,
		}
		uc.record(ctx, pf)
		return pf
	}

	return &Success{Entry: entry}
}

// Get 按 id 查询目录条目
func (uc *FileUseCase) Get(ctx context.Context, id string) (res Result) {
	defer uc.finish(ctx, OpGet, time.Now(), &res)

	if id == "" {
		return &InvalidInput{Reason: "id is required"}
	}
	entry, failure := uc.lookup(ctx, id)
	if failure != nil {
		return failure
	}
	return &Success{Entry: entry}
}

// List 返回全部目录条目
func (uc *FileUseCase) List(ctx context.Context) ([]*DirectoryEntry, error) {
	start := time.Now()
	entries, err := uc.entries.FindAll(ctx)
	if err != nil {
		be := newBackendError(StoreMetadata, err)
		uc.observer.ObserveOperation(OpList, string(KindBackendError), time.Since(start))
		uc.logger.WithContext(ctx).Error("查询目录条目失败", zap.String("op", OpList), zap.Error(err))
		return nil, be
	}
	uc.observer.ObserveOperation(OpList, string(KindSuccess), time.Since(start))
	return entries, nil
}

// lookup 按 id 查询条目，未找到返回 NotFound，仓储出错返回 BackendError
func (uc *FileUseCase) lookup(ctx context.Context, id string) (*DirectoryEntry, Result) {
	entry, err := uc.entries.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, &NotFound{Reason: EntryMissing, EntryID: id}
		}
		return nil, newBackendError(StoreMetadata, err)
	}
	return entry, nil
}

// record 写入对账记录
//
// 请求 ctx 取消后仍然要写入，所以使用 WithoutCancel 并单独设置超时。
func (uc *FileUseCase) record(ctx context.Context, pf *PartialFailure) {
	inc := &Inconsistency{
		ID:         uc.factory.newID(),
		Kind:       pf.Fault,
		Op:         pf.Op,
		EntryID:    pf.EntryID,
		Bucket:     pf.Bucket,
		Key:        pf.Key,
		Detail:     pf.Detail,
		DetectedAt: uc.factory.now().UTC(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.RecordTimeout)
	defer cancel()

	if err := uc.ledger.Record(rctx, inc); err != nil {
		uc.logger.WithContext(ctx).Error("写入对账记录失败",
			zap.String("op", pf.Op),
			zap.String("kind", string(pf.Fault)),
			zap.String("entry_id", pf.EntryID),
			zap.String("bucket", pf.Bucket),
			zap.String("key", pf.Key),
			zap.Error(err),
		)
	}
}

// finish 记录指标，并按结果类型输出日志
func (uc *FileUseCase) finish(ctx context.Context, op string, start time.Time, res *Result) {
	elapsed := time.Since(start)
	r := *res
	uc.observer.ObserveOperation(op, string(r.Kind()), elapsed)

	log := uc.logger.WithContext(ctx)
	base := []zap.Field{
		zap.String("op", op),
		zap.String("result", string(r.Kind())),
		zap.Duration("elapsed", elapsed),
	}

	switch v := r.(type) {
	case *Success:
		log.Debug("文件操作成功", append(base, zap.String("entry_id", v.Entry.ID),
			zap.String("bucket", v.Entry.BucketName), zap.String("key", v.Entry.ObjectKey))...)
	case *InvalidInput:
		log.Info("文件操作参数无效", append(base, zap.String("reason", v.Reason))...)
	case *NotFound:
		fields := append(base,
			zap.String("reason", string(v.Reason)),
			zap.String("entry_id", v.EntryID),
			zap.String("bucket", v.Bucket),
			zap.String("key", v.Key),
		)
		if v.Reason == ObjectMissing {
			log.Warn("目录条目引用的对象不存在", fields...)
			return
		}
		log.Info("目录条目不存在", fields...)
	case *BackendError:
		log.Error("存储后端调用失败", append(base,
			zap.String("store", v.Store),
			zap.String("code", v.Code),
			zap.Int("status_code", v.StatusCode),
			zap.Error(v.Err),
		)...)
	case *PartialFailure:
		log.Error("文件操作部分失败，两个存储不一致", append(base,
			zap.String("kind", string(v.Fault)),
			zap.String("entry_id", v.EntryID),
			zap.String("bucket", v.Bucket),
			zap.String("key", v.Key),
			zap.String("detail", v.Detail),
		)...)
	}
}

type nopLedger struct{}

func (nopLedger) Record(context.Context, *Inconsistency) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
