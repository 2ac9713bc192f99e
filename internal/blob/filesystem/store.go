package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tempinbox/backend/internal/blob"
)

// Store 基于本地文件系统的对象存储，用于开发环境与测试。
//
// 目录布局: <root>/<前缀两位>/<uuid>_<文件名>
type Store struct {
	root    string
	baseURL string
}

// NewStore 创建文件系统存储，目录不存在时自动创建。
func NewStore(root, baseURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Upload 将附件写入本地文件。
func (s *Store) Upload(_ context.Context, name, _ string, data []byte) (*blob.StoredObject, error) {
	id := uuid.NewString()
	relative := filepath.Join(id[:2], fmt.Sprintf("%s_%s", id, sanitizeName(name)))

	full := filepath.Join(s.root, relative)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}

	return &blob.StoredObject{
		URL:          s.baseURL + "/" + filepath.ToSlash(relative),
		DeleteHandle: relative,
	}, nil
}

// Delete 删除本地文件，文件不存在视为成功。
func (s *Store) Delete(_ context.Context, deleteHandle string) error {
	full := filepath.Join(s.root, filepath.FromSlash(deleteHandle))

	// 句柄必须落在存储根目录内
	if !strings.HasPrefix(filepath.Clean(full), filepath.Clean(s.root)) {
		return fmt.Errorf("invalid delete handle: %s", deleteHandle)
	}

	err := os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// sanitizeName 清洗文件名中的路径分隔符与控制字符。
func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
