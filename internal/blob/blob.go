// Package blob 定义附件内容的外部对象存储接口。
//
// 上传返回访问 URL 与删除句柄；删除永远是尽力而为的网络调用，
// 失败只记日志，不阻塞外层的邮件/邮箱操作。
package blob

import "context"

// StoredObject 表示一次成功上传的结果。
type StoredObject struct {
	URL          string // 对外可访问的下载地址
	DeleteHandle string // 删除时使用的句柄（对象 key 或文件路径）
}

// Storage 对象存储接口。
type Storage interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (*StoredObject, error)
	Delete(ctx context.Context, deleteHandle string) error
}
