package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// Store 附件文件存储实现
//
// 目录布局: <root>/<tenantID>/<mailID>/<fileID>
// 文件按生成的 fileID 存放，不做内容寻址，重复内容存两份。
type Store struct {
	basePath string
}

// NewStore 创建附件文件存储实例
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("attachment base path must not be empty")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment root: %w", err)
	}

	return &Store{basePath: abs}, nil
}

// BasePath 返回附件根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// SaveAttachment 将附件内容写入文件，并把相对路径回填到记录的 StoragePath。
func (s *Store) SaveAttachment(tenantID, mailID string, att *domain.MailAttachment) (string, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.Size == 0 {
		att.Size = int64(len(att.Content))
	}

	relPath := filepath.Join(sanitize(tenantID), sanitize(mailID), att.ID)
	fullPath := filepath.Join(s.basePath, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}

	if err := os.WriteFile(fullPath, att.Content, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	att.StoragePath = relPath
	return relPath, nil
}

// GetAttachment 按相对路径读取附件内容
func (s *Store) GetAttachment(relPath string) ([]byte, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrAttachmentNotFound
		}
		return nil, err
	}
	return data, nil
}

// DeleteMailAttachments 删除一封邮件的全部附件文件。
// 邮件被永久删除时调用，文件字节由附件记录独占。
func (s *Store) DeleteMailAttachments(tenantID, mailID string) error {
	dir := filepath.Join(s.basePath, sanitize(tenantID), sanitize(mailID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	return nil
}

// resolve 将相对路径解析到根目录内，拒绝目录穿越。
func (s *Store) resolve(relPath string) (string, error) {
	fullPath := filepath.Join(s.basePath, relPath)
	if !strings.HasPrefix(fullPath, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid attachment path: %s", relPath)
	}
	return fullPath, nil
}

// sanitize 去掉路径分隔符，防止 ID 拼出越界路径。
func sanitize(part string) string {
	part = strings.ReplaceAll(part, "/", "_")
	part = strings.ReplaceAll(part, "\\", "_")
	part = strings.ReplaceAll(part, "..", "_")
	return part
}
