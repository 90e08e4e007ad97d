package service

import (
	"context"
	"errors"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// systemFolderNames 系统文件夹的显示名
var systemFolderNames = map[domain.FolderType]string{
	domain.FolderInbox:  "收件箱",
	domain.FolderSent:   "已发送",
	domain.FolderDrafts: "草稿箱",
}

// FolderAssigner 负责把邮件放入文件夹。
//
// Place 是幂等的：对同一 (mail, folder) 的第二次调用是 no-op，
// 不是错误。系统文件夹按需懒创建。
type FolderAssigner struct {
	folders storage.FolderRepository
}

// NewFolderAssigner 创建文件夹分配器
func NewFolderAssigner(folders storage.FolderRepository) *FolderAssigner {
	return &FolderAssigner{folders: folders}
}

// Place 幂等地将邮件放入文件夹
func (fa *FolderAssigner) Place(ctx context.Context, mailID, folderID, mailboxID string) error {
	_, err := fa.folders.PlaceMailInFolder(&domain.MailInFolder{
		MailID:    mailID,
		FolderID:  folderID,
		MailboxID: mailboxID,
	})
	return err
}

// PlaceInSystemFolder 确保系统文件夹存在后将邮件放入其中
func (fa *FolderAssigner) PlaceInSystemFolder(ctx context.Context, tenantID, mailboxID, mailID string, folderType domain.FolderType) error {
	folder, err := fa.EnsureSystemFolder(ctx, tenantID, mailboxID, folderType)
	if err != nil {
		return err
	}
	return fa.Place(ctx, mailID, folder.ID, mailboxID)
}

// EnsureSystemFolder 返回邮箱的系统文件夹，不存在时创建。
func (fa *FolderAssigner) EnsureSystemFolder(ctx context.Context, tenantID, mailboxID string, folderType domain.FolderType) (*domain.Folder, error) {
	folder, err := fa.folders.GetFolderByType(mailboxID, folderType)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, storage.ErrFolderNotFound) {
		return nil, err
	}

	name, ok := systemFolderNames[folderType]
	if !ok {
		name = string(folderType)
	}

	folder = &domain.Folder{
		TenantID:  tenantID,
		MailboxID: mailboxID,
		Name:      name,
		Type:      folderType,
	}
	if err := fa.folders.CreateFolder(folder); err != nil {
		return nil, err
	}
	return folder, nil
}
