package service

import (
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
)

// CopyFileRequest 跨 bucket 复制请求
type CopyFileRequest struct {
	SourceObjectKey   string `json:"source_object_key"`
	SourceBucket      string `json:"source_bucket"`
	DestinationBucket string `json:"destination_bucket"`
}

// FileEntryResponse 目录条目响应
type FileEntryResponse struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ObjectKey   string            `json:"object_key"`
	BucketName  string            `json:"bucket_name"`
	ContentType string            `json:"content_type"`
	FileSize    int64             `json:"file_size"`
	UploadDate  string            `json:"upload_date"`
	UploadedBy  string            `json:"uploaded_by"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListFilesResponse 目录条目列表响应
type ListFilesResponse struct {
	Items []*FileEntryResponse `json:"items"`
	Total int                  `json:"total"`
}

// NotFoundDetail 404 响应的 data
type NotFoundDetail struct {
	Reason  string `json:"reason"`
	EntryID string `json:"entry_id,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key,omitempty"`
}

// BackendErrorDetail 后端错误响应的 data，code 为后端原始错误码
type BackendErrorDetail struct {
	Store      string `json:"store"`
	Code       string `json:"code"`
	StatusCode int    `json:"status_code,omitempty"`
}

// PartialFailureDetail 部分失败响应的 data
type PartialFailureDetail struct {
	Op      string `json:"op"`
	Fault   string `json:"fault"`
	EntryID string `json:"entry_id,omitempty"`
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
}

// PendingResponse 对账积压
type PendingResponse struct {
	Pending int64 `json:"pending"`
}

func toFileEntryResponse(e *biz.DirectoryEntry) *FileEntryResponse {
	return &FileEntryResponse{
		ID:          e.ID,
		FileName:    e.FileName,
		ObjectKey:   e.ObjectKey,
		BucketName:  e.BucketName,
		ContentType: e.ContentType,
		FileSize:    e.FileSize,
		UploadDate:  e.UploadDate.UTC().Format(time.RFC3339),
		UploadedBy:  e.UploadedBy,
		Metadata:    e.Metadata,
	}
}
