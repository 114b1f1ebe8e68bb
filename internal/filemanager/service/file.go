package service

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	apperrors "github.com/lk2023060901/file-manager-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// PendingCounter 对账记录积压查询
type PendingCounter interface {
	Pending(ctx context.Context) (int64, error)
}

// FileService 文件 HTTP 接口
type FileService struct {
	uc            *biz.FileUseCase
	pending       PendingCounter // 未启用对账时为 nil
	maxUploadSize int64
	logger        *logger.Logger
}

// NewFileService 创建文件服务，maxUploadSize <= 0 表示不限制
func NewFileService(uc *biz.FileUseCase, pending PendingCounter, maxUploadSize int64, log *logger.Logger) *FileService {
	return &FileService{
		uc:            uc,
		pending:       pending,
		maxUploadSize: maxUploadSize,
		logger:        log.Named("file-service"),
	}
}

// RegisterRoutes 注册 /files 路由
func (s *FileService) RegisterRoutes(r *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	files := r.Group("/files", middlewares...)
	{
		files.POST("/upload", s.Upload)
		files.GET("/download/:id", s.Download)
		files.DELETE("/delete/:id", s.Delete)
		files.POST("/copy", s.Copy)
		files.GET("/reconcile/pending", s.Pending)
		files.GET("", s.List)
		files.GET("/:id", s.Get)
	}
}

// Upload 上传文件（multipart 字段 file，可选字段 bucket）
func (s *FileService) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, "invalid file or field name is not 'file'")
		return
	}
	defer file.Close()

	if s.maxUploadSize > 0 && header.Size > s.maxUploadSize {
		response.ErrorWithCode(c, apperrors.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, "failed to read file")
		return
	}

	res := s.uc.Upload(c.Request.Context(), &biz.UploadRequest{
		Data:         data,
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		UploadedBy:   c.GetString("user_id"),
		Bucket:       c.PostForm("bucket"),
	})
	s.renderEntry(c, res)
}

// Download 下载文件，直接返回对象内容
func (s *FileService) Download(c *gin.Context) {
	res := s.uc.Download(c.Request.Context(), c.Param("id"))
	succ, ok := res.(*biz.Success)
	if !ok || succ.Content == nil {
		s.renderFailure(c, res)
		return
	}
	content := succ.Content
	defer content.Body.Close()

	headers := map[string]string{}
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": content.FileName}); disposition != "" {
		headers["Content-Disposition"] = disposition
	}
	c.DataFromReader(http.StatusOK, content.Size, content.ContentType, content.Body, headers)
}

// Delete 删除文件
func (s *FileService) Delete(c *gin.Context) {
	s.renderEntry(c, s.uc.Delete(c.Request.Context(), c.Param("id")))
}

// Copy 跨 bucket 复制文件
func (s *FileService) Copy(c *gin.Context) {
	var req CopyFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}

	res := s.uc.Copy(c.Request.Context(), &biz.CopyRequest{
		SourceObjectKey:   req.SourceObjectKey,
		SourceBucket:      req.SourceBucket,
		DestinationBucket: req.DestinationBucket,
	})
	s.renderEntry(c, res)
}

// Get 查询单个目录条目
func (s *FileService) Get(c *gin.Context) {
	s.renderEntry(c, s.uc.Get(c.Request.Context(), c.Param("id")))
}

// List 列出全部目录条目
func (s *FileService) List(c *gin.Context) {
	entries, err := s.uc.List(c.Request.Context())
	if err != nil {
		var be *biz.BackendError
		if errors.As(err, &be) {
			s.renderFailure(c, be)
			return
		}
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrInternalServer))
		return
	}

	items := make([]*FileEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toFileEntryResponse(e))
	}
	response.Success(c, &ListFilesResponse{Items: items, Total: len(items)})
}

// Pending 对账记录积压数量
func (s *FileService) Pending(c *gin.Context) {
	if s.pending == nil {
		response.ErrorWithCode(c, apperrors.ErrReconcileDisabled)
		return
	}
	n, err := s.pending.Pending(c.Request.Context())
	if err != nil {
		s.logger.Error("查询对账积压失败", zap.Error(err))
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrServiceUnavail))
		return
	}
	response.Success(c, &PendingResponse{Pending: n})
}

// renderEntry 成功时返回目录条目
func (s *FileService) renderEntry(c *gin.Context, res biz.Result) {
	if succ, ok := res.(*biz.Success); ok {
		response.Success(c, toFileEntryResponse(succ.Entry))
		return
	}
	s.renderFailure(c, res)
}

// renderFailure 把非成功结果映射为业务错误码，data 携带结构化详情
func (s *FileService) renderFailure(c *gin.Context, res biz.Result) {
	switch r := res.(type) {
	case *biz.InvalidInput:
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, r.Reason)
	case *biz.NotFound:
		code := apperrors.ErrFileNotFound
		if r.Reason == biz.ObjectMissing {
			code = apperrors.ErrObjectMissing
		}
		response.ErrorWithData(c, code, &NotFoundDetail{
			Reason:  string(r.Reason),
			EntryID: r.EntryID,
			Bucket:  r.Bucket,
			Key:     r.Key,
		}, r.Error())
	case *biz.BackendError:
		code := apperrors.ErrStorageBackend
		if r.Store == biz.StoreMetadata {
			code = apperrors.ErrMetadataBackend
		}
		response.ErrorWithData(c, code, &BackendErrorDetail{
			Store:      r.Store,
			Code:       r.Code,
			StatusCode: r.StatusCode,
		}, r.Message)
	case *biz.PartialFailure:
		response.ErrorWithData(c, apperrors.ErrPartialFailure, &PartialFailureDetail{
			Op:      r.Op,
			Fault:   string(r.Fault),
			EntryID: r.EntryID,
			Bucket:  r.Bucket,
			Key:     r.Key,
		}, r.Detail)
	default:
		response.ErrorWithCode(c, apperrors.ErrInternalServer)
	}
}
