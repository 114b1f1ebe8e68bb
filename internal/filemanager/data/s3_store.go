package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// S3Config AWS S3（或兼容服务）连接配置
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string // 为空时使用 AWS 默认 endpoint
	UsePathStyle bool
}

// s3API 适配器用到的 S3 客户端方法
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client 创建 S3 客户端
//
// 有静态凭证时使用静态凭证，否则走 SDK 默认凭证链。
func NewS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3ObjectStore 基于 aws-sdk-go-v2 的 biz.ObjectStore 实现
type S3ObjectStore struct {
	client s3API
	logger *logger.Logger
}

var _ biz.ObjectStore = (*S3ObjectStore)(nil)

// NewS3ObjectStore 创建 S3 对象存储
func NewS3ObjectStore(client *s3.Client, lgr *logger.Logger) *S3ObjectStore {
	return newS3ObjectStore(client, lgr)
}

func newS3ObjectStore(client s3API, lgr *logger.Logger) *S3ObjectStore {
	if lgr == nil {
		lgr = logger.L()
	}
	return &S3ObjectStore{client: client, logger: lgr.Named("s3-store")}
}

// Put 写入对象
func (s *S3ObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (biz.StoreStatus, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return biz.StoreStatus{}, classifyS3Error("put", err)
	}
	return biz.StoreStatus{StatusCode: http.StatusOK, Message: aws.ToString(out.ETag)}, nil
}

// Get 读取对象，调用方负责关闭 Body
func (s *S3ObjectStore) Get(ctx context.Context, bucket, key string) (*biz.StoredObject, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("get", err)
	}
	return &biz.StoredObject{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// Delete 删除对象。S3 对不存在的 key 同样返回 204。
func (s *S3ObjectStore) Delete(ctx context.Context, bucket, key string) (biz.StoreStatus, error) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		se := classifyS3Error("delete", err)
		if errors.Is(se, biz.ErrObjectNotFound) {
			s.logger.Debug("删除的对象不存在", zap.String("bucket", bucket), zap.String("key", key))
			return biz.StoreStatus{StatusCode: http.StatusNoContent}, nil
		}
		return biz.StoreStatus{}, se
	}
	return biz.StoreStatus{StatusCode: http.StatusNoContent}, nil
}

// Copy 服务端复制
func (s *S3ObjectStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (biz.StoreStatus, error) {
	out, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	})
	if err != nil {
		return biz.StoreStatus{}, classifyS3Error("copy", err)
	}

	etag := ""
	if out.CopyObjectResult != nil {
		etag = aws.ToString(out.CopyObjectResult.ETag)
	}
	return biz.StoreStatus{StatusCode: http.StatusOK, Message: etag}, nil
}

// Stat 查询对象元信息
func (s *S3ObjectStore) Stat(ctx context.Context, bucket, key string) (*biz.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("stat", err)
	}
	return &biz.ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

// copySource CopySource 需要 URL 编码
func copySource(bucket, key string) string {
	return url.PathEscape(bucket + "/" + key)
}

// classifyS3Error 把 SDK 错误转换为 *biz.StoreError，错误码和 HTTP 状态码原样保留
func classifyS3Error(op string, err error) error {
	se := &biz.StoreError{
		Store:   biz.StoreObject,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		se.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			se.Message = msg
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		se.StatusCode = respErr.HTTPStatusCode()
	}

	if se.Code == "" {
		se.Code = biz.ContextCode(err)
	}
	if se.Code == "" {
		se.Code = biz.CodeUnknown
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || se.Code == "NoSuchKey" {
		se.Err = fmt.Errorf("%w: %w", biz.ErrObjectNotFound, err)
	}
	return se
}
