package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-manager-backend/internal/pkg/minio"
	"go.uber.org/zap"
)

// minioAPI pkg/minio 客户端中被对象存储适配器用到的方法
type minioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts pkgminio.PutObjectOptions) (pkgminio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string) (*pkgminio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string) (pkgminio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string) error
	CopyObject(ctx context.Context, dst pkgminio.CopyDestOptions, src pkgminio.CopySrcOptions) (pkgminio.UploadInfo, error)
}

// MinIOObjectStore 基于 MinIO 的 biz.ObjectStore 实现
type MinIOObjectStore struct {
	client minioAPI
	logger *logger.Logger
}

var _ biz.ObjectStore = (*MinIOObjectStore)(nil)

// NewMinIOObjectStore 创建 MinIO 对象存储
func NewMinIOObjectStore(client *pkgminio.Client, lgr *logger.Logger) *MinIOObjectStore {
	return newMinIOObjectStore(client, lgr)
}

func newMinIOObjectStore(client minioAPI, lgr *logger.Logger) *MinIOObjectStore {
	if lgr == nil {
		lgr = logger.L()
	}
	return &MinIOObjectStore{client: client, logger: lgr.Named("minio-store")}
}

// Put 写入对象
func (s *MinIOObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (biz.StoreStatus, error) {
	info, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), pkgminio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return biz.StoreStatus{}, classifyMinioError("put", err)
	}
	return biz.StoreStatus{StatusCode: http.StatusOK, Message: info.ETag}, nil
}

// Get 读取对象，调用方负责关闭 Body
func (s *MinIOObjectStore) Get(ctx context.Context, bucket, key string) (*biz.StoredObject, error) {
	obj, err := s.client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, classifyMinioError("get", err)
	}
	return &biz.StoredObject{
		Body:        obj,
		ContentType: obj.Info.ContentType,
		Size:        obj.Info.Size,
	}, nil
}

// Delete 删除对象，对象不存在视为成功
func (s *MinIOObjectStore) Delete(ctx context.Context, bucket, key string) (biz.StoreStatus, error) {
	err := s.client.RemoveObject(ctx, bucket, key)
	if err != nil && !pkgminio.IsObjectNotFound(err) {
		return biz.StoreStatus{}, classifyMinioError("delete", err)
	}
	if err != nil {
		s.logger.Debug("删除的对象不存在", zap.String("bucket", bucket), zap.String("key", key))
	}
	return biz.StoreStatus{StatusCode: http.StatusNoContent}, nil
}

// Copy 服务端复制
func (s *MinIOObjectStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (biz.StoreStatus, error) {
	info, err := s.client.CopyObject(ctx,
		pkgminio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		pkgminio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return biz.StoreStatus{}, classifyMinioError("copy", err)
	}
	return biz.StoreStatus{StatusCode: http.StatusOK, Message: info.ETag}, nil
}

// Stat 查询对象元信息
func (s *MinIOObjectStore) Stat(ctx context.Context, bucket, key string) (*biz.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, classifyMinioError("stat", err)
	}
	return &biz.ObjectInfo{
		Bucket:      bucket,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}, nil
}

// classifyMinioError 把 MinIO 错误转换为 *biz.StoreError，错误码原样保留
func classifyMinioError(op string, err error) error {
	se := &biz.StoreError{
		Store: biz.StoreObject,
		Op:    op,
		Err:   err,
	}

	code, status := pkgminio.ErrorCode(err)
	switch {
	case code != "":
		se.Code = code
		se.StatusCode = status
	case errors.Is(err, pkgminio.ErrInvalidBucketName):
		se.Code = "InvalidBucketName"
		se.StatusCode = http.StatusBadRequest
	case errors.Is(err, pkgminio.ErrInvalidObjectName):
		se.Code = "InvalidObjectName"
		se.StatusCode = http.StatusBadRequest
	default:
		se.Code = biz.ContextCode(err)
	}
	if se.Code == "" {
		se.Code = biz.CodeUnknown
	}

	if pkgminio.IsObjectNotFound(err) {
		se.Err = fmt.Errorf("%w: %w", biz.ErrObjectNotFound, err)
	}
	se.Message = err.Error()
	return se
}
