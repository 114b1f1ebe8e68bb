package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// PutObjectOptions represents options for uploading an object
type PutObjectOptions struct {
	ContentType  string
	UserMetadata map[string]string
}

// CopyDestOptions represents destination options for copying an object
type CopyDestOptions struct {
	Bucket string
	Object string
}

// CopySrcOptions represents source options for copying an object
type CopySrcOptions struct {
	Bucket    string
	Object    string
	VersionID string
}

// UploadInfo represents information about an uploaded or copied object
type UploadInfo struct {
	Bucket    string
	Key       string
	ETag      string
	Size      int64
	VersionID string
}

// ObjectInfo represents object information
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// Object is an open object stream together with its metadata
type Object struct {
	io.ReadCloser
	Info ObjectInfo
}

// PutObject uploads an object to a bucket
func (c *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts PutObjectOptions) (UploadInfo, error) {
	if err := c.checkArgs(bucketName, objectName); err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucketName, objectName)
	}

	info, err := c.client.PutObject(ctx, bucketName, objectName, reader, objectSize, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.UserMetadata,
	})
	if err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucketName, objectName)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", bucketName),
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag),
	)

	return UploadInfo{
		Bucket:    info.Bucket,
		Key:       info.Key,
		ETag:      info.ETag,
		Size:      info.Size,
		VersionID: info.VersionID,
	}, nil
}

// GetObject opens an object for reading.
//
// minio-go defers the request until the first read, so the object is stat'ed
// here to surface NoSuchKey before any bytes are handed to the caller.
func (c *Client) GetObject(ctx context.Context, bucketName, objectName string) (*Object, error) {
	if err := c.checkArgs(bucketName, objectName); err != nil {
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}

	obj, err := c.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}

	return &Object{ReadCloser: obj, Info: toObjectInfo(stat)}, nil
}

// StatObject gets object metadata
func (c *Client) StatObject(ctx context.Context, bucketName, objectName string) (ObjectInfo, error) {
	if err := c.checkArgs(bucketName, objectName); err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, bucketName, objectName)
	}

	info, err := c.client.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, bucketName, objectName)
	}
	return toObjectInfo(info), nil
}

// RemoveObject removes an object from a bucket. Removing a missing key succeeds.
func (c *Client) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	if err := c.checkArgs(bucketName, objectName); err != nil {
		return WrapError("RemoveObject", err, bucketName, objectName)
	}

	if err := c.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return WrapError("RemoveObject", err, bucketName, objectName)
	}

	c.logger.Debug("object removed",
		zap.String("bucket", bucketName),
		zap.String("object", objectName),
	)
	return nil
}

// CopyObject performs a server-side copy from src to dst
func (c *Client) CopyObject(ctx context.Context, dst CopyDestOptions, src CopySrcOptions) (UploadInfo, error) {
	if err := c.checkArgs(src.Bucket, src.Object); err != nil {
		return UploadInfo{}, WrapError("CopyObject", err, src.Bucket, src.Object)
	}
	if err := c.checkArgs(dst.Bucket, dst.Object); err != nil {
		return UploadInfo{}, WrapError("CopyObject", err, dst.Bucket, dst.Object)
	}

	info, err := c.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Object},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Object, VersionID: src.VersionID},
	)
	if err != nil {
		return UploadInfo{}, WrapError("CopyObject", err, dst.Bucket, dst.Object)
	}

	c.logger.Debug("object copied",
		zap.String("src_bucket", src.Bucket),
		zap.String("src_object", src.Object),
		zap.String("dst_bucket", dst.Bucket),
		zap.String("dst_object", dst.Object),
	)

	return UploadInfo{
		Bucket:    info.Bucket,
		Key:       info.Key,
		ETag:      info.ETag,
		Size:      info.Size,
		VersionID: info.VersionID,
	}, nil
}

func (c *Client) checkArgs(bucketName, objectName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if bucketName == "" {
		return ErrInvalidBucketName
	}
	if err := ValidateObjectName(objectName); err != nil {
		return ErrInvalidObjectName
	}
	return nil
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		Metadata:     info.UserMetadata,
	}
}
