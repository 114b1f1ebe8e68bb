package biz

import (
	"fmt"
	"io"
)

// ResultKind 操作结果类型
type ResultKind string

const (
	KindSuccess        ResultKind = "success"
	KindInvalidInput   ResultKind = "invalid_input"
	KindNotFound       ResultKind = "not_found"
	KindBackendError   ResultKind = "backend_error"
	KindPartialFailure ResultKind = "partial_failure"
)

// Result 每个文件操作返回且只返回下面一种结果：
// *Success, *InvalidInput, *NotFound, *BackendError, *PartialFailure
type Result interface {
	Kind() ResultKind
	isResult()
}

// Success 操作完整成功
type Success struct {
	Entry   *DirectoryEntry
	Content *Content // 仅下载时非空
}

// Content 下载得到的对象内容，调用方负责关闭 Body
type Content struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
	Size        int64
}

// InvalidInput 调用方输入不满足前置条件，未发生任何 I/O
type InvalidInput struct {
	Reason string
}

// NotFoundReason 区分条目不存在和对象丢失
type NotFoundReason string

const (
	// EntryMissing id 或 object key 没有对应的目录条目
	EntryMissing NotFoundReason = "entry_missing"
	// ObjectMissing 目录条目存在，但对象存储里没有对象（一致性故障）
	ObjectMissing NotFoundReason = "object_missing"
)

// NotFound 条目或对象不存在
type NotFound struct {
	Reason  NotFoundReason
	EntryID string
	Bucket  string
	Key     string
}

// BackendError 某个存储调用失败，且本次操作没有任何副作用生效
type BackendError struct {
	Store      string // object / metadata
	Code       string
	StatusCode int
	Message    string
	Err        error
}

// PartialFailure 一个存储的步骤已生效，另一个没有
type PartialFailure struct {
	Op      string
	Fault   InconsistencyKind
	EntryID string
	Bucket  string
	Key     string
	Detail  string
	Err     error
}

func (*Success) Kind() ResultKind        { return KindSuccess }
func (*InvalidInput) Kind() ResultKind   { return KindInvalidInput }
func (*NotFound) Kind() ResultKind       { return KindNotFound }
func (*BackendError) Kind() ResultKind   { return KindBackendError }
func (*PartialFailure) Kind() ResultKind { return KindPartialFailure }

func (*Success) isResult()        {}
func (*InvalidInput) isResult()   {}
func (*NotFound) isResult()       {}
func (*BackendError) isResult()   {}
func (*PartialFailure) isResult() {}

func (r *InvalidInput) Error() string {
	return "invalid input: " + r.Reason
}

func (r *NotFound) Error() string {
	if r.Reason == ObjectMissing {
		return fmt.Sprintf("object %s/%s referenced by entry %s is missing", r.Bucket, r.Key, r.EntryID)
	}
	if r.EntryID != "" {
		return "directory entry not found: " + r.EntryID
	}
	return fmt.Sprintf("directory entry not found: %s/%s", r.Bucket, r.Key)
}

func (r *BackendError) Error() string {
	return fmt.Sprintf("%s store error %s: %s", r.Store, r.Code, r.Message)
}

func (r *BackendError) Unwrap() error {
	return r.Err
}

func (r *PartialFailure) Error() string {
	return fmt.Sprintf("%s partially failed (%s at %s/%s): %s", r.Op, r.Fault, r.Bucket, r.Key, r.Detail)
}

func (r *PartialFailure) Unwrap() error {
	return r.Err
}
