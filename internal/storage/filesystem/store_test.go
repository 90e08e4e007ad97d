package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

func TestSaveAndGetAttachment(t *testing.T) {
	t.Run("写入后按存储路径读回", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		att := &domain.MailAttachment{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			Content:     []byte("pdf-bytes"),
		}
		relPath, err := store.SaveAttachment("tenant-1", "mail-1", att)
		require.NoError(t, err)
		assert.Equal(t, relPath, att.StoragePath)
		assert.NotEmpty(t, att.ID)
		assert.Equal(t, int64(len("pdf-bytes")), att.Size)

		data, err := store.GetAttachment(relPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf-bytes"), data)
	})

	t.Run("文件不存在时返回哨兵错误", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.GetAttachment(filepath.Join("t1", "m1", "missing"))
		assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
	})

	t.Run("拒绝目录穿越路径", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.GetAttachment("../../etc/passwd")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrAttachmentNotFound)
	})

	t.Run("ID中的路径分隔符被清洗", func(t *testing.T) {
		base := t.TempDir()
		store, err := NewStore(base)
		require.NoError(t, err)

		att := &domain.MailAttachment{Filename: "x", Content: []byte("x")}
		relPath, err := store.SaveAttachment("../evil", "mail/1", att)
		require.NoError(t, err)

		fullPath := filepath.Join(base, relPath)
		assert.True(t, filepath.IsAbs(fullPath))
		_, statErr := os.Stat(fullPath)
		assert.NoError(t, statErr)
	})
}

func TestDeleteMailAttachments(t *testing.T) {
	t.Run("删除邮件的全部附件文件", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		att1 := &domain.MailAttachment{Filename: "a", Content: []byte("a")}
		att2 := &domain.MailAttachment{Filename: "b", Content: []byte("b")}
		rel1, err := store.SaveAttachment("t1", "m1", att1)
		require.NoError(t, err)
		_, err = store.SaveAttachment("t1", "m1", att2)
		require.NoError(t, err)

		require.NoError(t, store.DeleteMailAttachments("t1", "m1"))

		_, err = store.GetAttachment(rel1)
		assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
	})
}
