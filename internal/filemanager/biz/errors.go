package biz

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrEntryNotFound  = errors.New("directory entry not found")
	ErrObjectNotFound = errors.New("stored object not found")
)

// 出错的存储
const (
	StoreObject   = "object"
	StoreMetadata = "metadata"
)

// CodeUnknown 无法识别后端错误码时使用
const CodeUnknown = "Unknown"

// StoreError 后端存储错误，保留后端返回的原始错误码和状态码
type StoreError struct {
	Store      string // object / metadata
	Op         string
	Code       string // 后端原始错误码，例如 AccessDenied、NoSuchBucket
	StatusCode int    // 后端返回的 HTTP 状态码（没有则为 0）
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s store: %s failed: %s (%d): %s", e.Store, e.Op, e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s store: %s failed: %s: %s", e.Store, e.Op, e.Code, msg)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ContextCode 返回 context 错误对应的错误码，非 context 错误返回空串
func ContextCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	}
	return ""
}

// newBackendError 把任意后端错误归类为 BackendError，错误码原样透传
func newBackendError(store string, err error) *BackendError {
	be := &BackendError{
		Store:   store,
		Code:    CodeUnknown,
		Message: err.Error(),
		Err:     err,
	}

	var se *StoreError
	if errors.As(err, &se) {
		if se.Code != "" {
			be.Code = se.Code
		}
		be.StatusCode = se.StatusCode
		if se.Message != "" {
			be.Message = se.Message
		}
		return be
	}

	if code := ContextCode(err); code != "" {
		be.Code = code
	}
	return be
}
