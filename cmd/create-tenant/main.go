package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"tenantmail/backend/internal/auth"
	"tenantmail/backend/internal/config"
	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage/postgres"
)

func main() {
	name := flag.String("name", "", "租户名称")
	subdomain := flag.String("subdomain", "", "租户子域名")
	adminEmail := flag.String("admin-email", "", "管理员邮箱地址（同时创建为邮箱账号）")
	password := flag.String("password", "", "管理员邮箱密码")
	dailyLimit := flag.Int64("daily-limit", 1000, "每日发送配额（按收件人计），0 表示不限制")
	flag.Parse()

	if *name == "" || *subdomain == "" || *adminEmail == "" || *password == "" {
		fmt.Println("用法:")
		fmt.Println("  create-tenant -name='Acme Inc' -subdomain=acme -admin-email=admin@acme.example -password=secret [-daily-limit=1000]")
		os.Exit(1)
	}

	if err := domain.ValidateAddress(*adminEmail); err != nil {
		fmt.Printf("错误: 管理员邮箱无效: %v\n", err)
		os.Exit(1)
	}
	if len(*password) < 8 {
		fmt.Println("错误: 密码至少 8 个字符")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("错误: 需要配置数据库（TENANTMAIL_DATABASE_TYPE / TENANTMAIL_DATABASE_DSN）")
		os.Exit(1)
	}

	store, err := postgres.NewStoreWithType(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		fmt.Printf("错误: 连接数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	tenant := &domain.Tenant{
		ID:              uuid.NewString(),
		Name:            *name,
		Subdomain:       *subdomain,
		AdminEmail:      domain.NormalizeAddress(*adminEmail),
		MaxEmailsPerDay: *dailyLimit,
		IsActive:        true,
	}
	if err := store.CreateTenant(tenant); err != nil {
		fmt.Printf("错误: 创建租户失败: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Printf("错误: 密码哈希失败: %v\n", err)
		os.Exit(1)
	}

	mailbox := &domain.Mailbox{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		Address:      tenant.AdminEmail,
		DisplayName:  *name + " Admin",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := store.CreateMailbox(mailbox); err != nil {
		fmt.Printf("错误: 创建管理员邮箱失败: %v\n", err)
		os.Exit(1)
	}

	// 预建系统文件夹，省去首封邮件时的懒创建
	for folderType, folderName := range map[domain.FolderType]string{
		domain.FolderInbox:  "收件箱",
		domain.FolderSent:   "已发送",
		domain.FolderDrafts: "草稿箱",
	} {
		folder := &domain.Folder{
			TenantID:  tenant.ID,
			MailboxID: mailbox.ID,
			Name:      folderName,
			Type:      folderType,
		}
		if err := store.CreateFolder(folder); err != nil {
			fmt.Printf("警告: 创建文件夹 %s 失败: %v\n", folderName, err)
		}
	}

	fmt.Println("✓ 租户创建成功!")
	fmt.Printf("  租户 ID:   %s\n", tenant.ID)
	fmt.Printf("  名称:      %s\n", tenant.Name)
	fmt.Printf("  子域名:    %s\n", tenant.Subdomain)
	fmt.Printf("  管理员:    %s\n", mailbox.Address)
	fmt.Printf("  每日配额:  %d\n", tenant.MaxEmailsPerDay)
}
