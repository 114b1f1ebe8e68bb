package biz

import (
	"time"
)

// 元数据中的固定键
const (
	MetaOriginalFileName = "OriginalFileName"
	MetaExtension        = "Extension"
	MetaCopiedFrom       = "CopiedFrom"
)

// DefaultContentType 元数据和对象存储都没有内容类型时使用
const DefaultContentType = "application/octet-stream"

// DirectoryEntry 文件目录条目（一个已存储对象的元数据记录）
type DirectoryEntry struct {
	ID          string
	FileName    string // 用户上传时的原始文件名，仅用于展示
	ObjectKey   string // 对象存储中的 key
	BucketName  string
	ContentType string
	FileSize    int64
	UploadDate  time.Time // UTC
	UploadedBy  string
	Metadata    map[string]string
}

// Clone 返回条目的深拷贝
func (e *DirectoryEntry) Clone() *DirectoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Location 返回 bucket/key 形式的对象地址
func (e *DirectoryEntry) Location() string {
	return e.BucketName + "/" + e.ObjectKey
}
