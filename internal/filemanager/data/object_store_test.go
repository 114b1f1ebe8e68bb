package data

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-manager-backend/internal/pkg/minio"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio 内存实现的 minioAPI
type fakeMinio struct {
	objects map[string][]byte
	err     error
}

func newFakeMinio() *fakeMinio {
	return &fakeMinio{objects: make(map[string][]byte)}
}

func noSuchKey() error {
	return pkgminio.WrapError("GetObject", minio.ErrorResponse{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		StatusCode: http.StatusNotFound,
	}, "b", "k")
}

func (f *fakeMinio) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ pkgminio.PutObjectOptions) (pkgminio.UploadInfo, error) {
	if f.err != nil {
		return pkgminio.UploadInfo{}, f.err
	}
	data, _ := io.ReadAll(reader)
	f.objects[bucket+"/"+key] = data
	return pkgminio.UploadInfo{Bucket: bucket, Key: key, ETag: "etag", Size: int64(len(data))}, nil
}

func (f *fakeMinio) GetObject(_ context.Context, bucket, key string) (*pkgminio.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, noSuchKey()
	}
	return &pkgminio.Object{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		Info:       pkgminio.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: "text/plain"},
	}, nil
}

func (f *fakeMinio) StatObject(_ context.Context, bucket, key string) (pkgminio.ObjectInfo, error) {
	if f.err != nil {
		return pkgminio.ObjectInfo{}, f.err
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return pkgminio.ObjectInfo{}, noSuchKey()
	}
	return pkgminio.ObjectInfo{Key: key, Size: int64(len(data)), ETag: "etag"}, nil
}

func (f *fakeMinio) RemoveObject(_ context.Context, bucket, key string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return noSuchKey()
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeMinio) CopyObject(_ context.Context, dst pkgminio.CopyDestOptions, src pkgminio.CopySrcOptions) (pkgminio.UploadInfo, error) {
	if f.err != nil {
		return pkgminio.UploadInfo{}, f.err
	}
	data, ok := f.objects[src.Bucket+"/"+src.Object]
	if !ok {
		return pkgminio.UploadInfo{}, noSuchKey()
	}
	f.objects[dst.Bucket+"/"+dst.Object] = data
	return pkgminio.UploadInfo{Bucket: dst.Bucket, Key: dst.Object, ETag: "etag"}, nil
}

func TestMinIOObjectStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMinio()
	store := newMinIOObjectStore(fake, logger.NewNop())

	status, err := store.Put(ctx, "b", "k", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status.StatusCode)

	obj, err := store.Get(ctx, "b", "k")
	require.NoError(t, err)
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), obj.Size)

	_, err = store.Copy(ctx, "b", "k", "c", "k")
	require.NoError(t, err)
	info, err := store.Stat(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	_, err = store.Delete(ctx, "b", "k")
	require.NoError(t, err)

	t.Run("missing object maps to ErrObjectNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "b", "k")
		require.Error(t, err)
		assert.True(t, errors.Is(err, biz.ErrObjectNotFound))

		var se *biz.StoreError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "NoSuchKey", se.Code)
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
		assert.Equal(t, biz.StoreObject, se.Store)
	})

	t.Run("deleting a missing object succeeds", func(t *testing.T) {
		status, err := store.Delete(ctx, "b", "k")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, status.StatusCode)
	})
}

func TestClassifyMinioError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
		notFound   bool
	}{
		{
			name:       "access denied keeps server code",
			err:        minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden},
			wantCode:   "AccessDenied",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing bucket is not an object miss",
			err:        minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound},
			wantCode:   "NoSuchBucket",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing key",
			err:        noSuchKey(),
			wantCode:   "NoSuchKey",
			wantStatus: http.StatusNotFound,
			notFound:   true,
		},
		{
			name:       "invalid bucket name",
			err:        pkgminio.WrapError("PutObject", pkgminio.ErrInvalidBucketName, "", ""),
			wantCode:   "InvalidBucketName",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: "DeadlineExceeded",
		},
		{
			name:     "unknown",
			err:      errors.New("connection reset"),
			wantCode: biz.CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyMinioError("op", tt.err)
			var se *biz.StoreError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Equal(t, tt.notFound, errors.Is(err, biz.ErrObjectNotFound))
		})
	}
}

// fakeS3 内存实现的 s3API
type fakeS3 struct {
	objects map[string][]byte
	err     error

	lastCopySource string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func s3NoSuchKey() error {
	return &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{ETag: aws.String("\"etag\"")}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, s3NoSuchKey()
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   aws.String("text/plain"),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastCopySource = aws.ToString(in.CopySource)
	src, err := url.PathUnescape(f.lastCopySource)
	if err != nil {
		return nil, err
	}
	data, ok := f.objects[src]
	if !ok {
		return nil, s3NoSuchKey()
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.CopyObjectOutput{CopyObjectResult: &types.CopyObjectResult{ETag: aws.String("\"etag\"")}}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), ETag: aws.String("\"etag\"")}, nil
}

// s3ResponseError 模拟 SDK 反序列化后的错误链
func s3ResponseError(status int, code, message string) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      &smithy.GenericAPIError{Code: code, Message: message},
		},
		RequestID: "req-1",
	}
}

func TestS3ObjectStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3ObjectStore(fake, logger.NewNop())

	_, err := store.Put(ctx, "b", "dir/k.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)

	obj, err := store.Get(ctx, "b", "dir/k.txt")
	require.NoError(t, err)
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = store.Copy(ctx, "b", "dir/k.txt", "c", "dir/k.txt")
	require.NoError(t, err)
	assert.Equal(t, "b%2Fdir%2Fk.txt", fake.lastCopySource)

	info, err := store.Stat(ctx, "c", "dir/k.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	_, err = store.Stat(ctx, "c", "missing")
	assert.True(t, errors.Is(err, biz.ErrObjectNotFound))

	_, err = store.Get(ctx, "b", "missing")
	assert.True(t, errors.Is(err, biz.ErrObjectNotFound))

	status, err := store.Delete(ctx, "b", "dir/k.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status.StatusCode)
}

func TestClassifyS3Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
		notFound   bool
	}{
		{"access denied", s3ResponseError(http.StatusForbidden, "AccessDenied", "Access Denied"), "AccessDenied", http.StatusForbidden, false},
		{"missing bucket", s3ResponseError(http.StatusNotFound, "NoSuchBucket", "bucket missing"), "NoSuchBucket", http.StatusNotFound, false},
		{"missing key via response", s3ResponseError(http.StatusNotFound, "NoSuchKey", "key missing"), "NoSuchKey", http.StatusNotFound, true},
		{"typed missing key", s3NoSuchKey(), "NoSuchKey", 0, true},
		{"canceled", context.Canceled, "Canceled", 0, false},
		{"unknown", errors.New("dial tcp: refused"), biz.CodeUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyS3Error("op", tt.err)
			var se *biz.StoreError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Equal(t, tt.notFound, errors.Is(err, biz.ErrObjectNotFound))
		})
	}
}

func TestS3ObjectStore_BackendFailure(t *testing.T) {
	fake := newFakeS3()
	fake.err = s3ResponseError(http.StatusServiceUnavailable, "SlowDown", "Please reduce your request rate.")
	store := newS3ObjectStore(fake, logger.NewNop())

	_, err := store.Delete(context.Background(), "b", "k")
	var se *biz.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "SlowDown", se.Code)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "Please reduce your request rate.", se.Message)
}
