// Package seed 在启动时导入 initfile 目录中的初始数据：用户、目录条目及其文档。
// 导入是幂等的，已存在的用户、条目和已索引的文档会被跳过。
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/internal/service"
	"catalog-assist-go/pkg/log"

	"github.com/spf13/viper"
)

// ManifestFile 是种子目录中清单文件的名称。
const ManifestFile = "manifest.yaml"

// Manifest 对应 manifest.yaml 的结构。
type Manifest struct {
	Users        []UserSeed        `mapstructure:"users"`
	CatalogItems []CatalogItemSeed `mapstructure:"catalog_items"`
}

type UserSeed struct {
	Username string `mapstructure:"username"`
	Role     string `mapstructure:"role"`
}

type CatalogItemSeed struct {
	Code        string         `mapstructure:"code"`
	Name        string         `mapstructure:"name"`
	Category    string         `mapstructure:"category"`
	Description string         `mapstructure:"description"`
	Documents   []DocumentSeed `mapstructure:"documents"`
}

// DocumentSeed 中的 Path 相对于种子目录，文件内容按纯文本入库。
type DocumentSeed struct {
	FileName string `mapstructure:"file_name"`
	Path     string `mapstructure:"path"`
}

// Summary 统计一次导入新建的数据量。
type Summary struct {
	Users        int
	CatalogItems int
	Documents    int
	Skipped      int
}

// LoadManifest 读取并解析清单文件。
func LoadManifest(path string) (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取种子清单失败: %w", err)
	}
	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("解析种子清单失败: %w", err)
	}
	return &m, nil
}

// Importer 通过正常的业务服务导入种子数据。
type Importer struct {
	users      repository.UserRepository
	catalog    repository.CatalogRepository
	docs       repository.DocumentRepository
	catalogSvc service.CatalogService
	docSvc     service.DocumentService
}

// NewImporter 创建一个新的 Importer 实例。
func NewImporter(
	users repository.UserRepository,
	catalog repository.CatalogRepository,
	docs repository.DocumentRepository,
	catalogSvc service.CatalogService,
	docSvc service.DocumentService,
) *Importer {
	return &Importer{users: users, catalog: catalog, docs: docs, catalogSvc: catalogSvc, docSvc: docSvc}
}

// Run 导入 dir 下的清单。目录或清单不存在时直接返回。单个文档失败只记录日志。
func (i *Importer) Run(ctx context.Context, dir string) (Summary, error) {
	var sum Summary
	manifestPath := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifestPath); err != nil {
		log.Infof("[Seed] 清单 '%s' 不存在，跳过初始化导入", manifestPath)
		return sum, nil
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return sum, err
	}

	for _, u := range m.Users {
		created, err := i.ensureUser(ctx, u)
		if err != nil {
			return sum, err
		}
		if created {
			sum.Users++
		} else {
			sum.Skipped++
		}
	}

	for _, c := range m.CatalogItems {
		item, created, err := i.ensureCatalogItem(ctx, c)
		if err != nil {
			return sum, err
		}
		if created {
			sum.CatalogItems++
		} else {
			sum.Skipped++
		}
		for _, d := range c.Documents {
			ingested, err := i.ensureDocument(ctx, dir, item.ID, d)
			if err != nil {
				log.Warnf("[Seed] 导入文档失败: %s, err=%v", d.FileName, err)
				continue
			}
			if ingested {
				sum.Documents++
			} else {
				sum.Skipped++
			}
		}
	}
	log.Infof("[Seed] 初始化导入完成: 用户 %d, 目录条目 %d, 文档 %d, 跳过 %d",
		sum.Users, sum.CatalogItems, sum.Documents, sum.Skipped)
	return sum, nil
}

func (i *Importer) ensureUser(ctx context.Context, u UserSeed) (bool, error) {
	if _, err := i.users.FindByUsername(ctx, u.Username); err == nil {
		return false, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return false, err
	}
	role := u.Role
	if role == "" {
		role = "USER"
	}
	if err := i.users.Create(ctx, &model.User{Username: u.Username, Role: role}); err != nil {
		return false, fmt.Errorf("创建用户 %s 失败: %w", u.Username, err)
	}
	return true, nil
}

func (i *Importer) ensureCatalogItem(ctx context.Context, c CatalogItemSeed) (*model.CatalogItem, bool, error) {
	item, err := i.catalog.FindByCode(ctx, c.Code)
	if err == nil {
		return item, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}
	item, err = i.catalogSvc.Create(ctx, service.CreateCatalogItemRequest{
		Code:        c.Code,
		Name:        c.Name,
		Category:    c.Category,
		Description: c.Description,
	})
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// ensureDocument 登记并同步入库文档；已登记但未索引的文档会重新入库。
func (i *Importer) ensureDocument(ctx context.Context, dir string, catalogItemID uint, d DocumentSeed) (bool, error) {
	doc, err := i.docs.FindByFileName(ctx, d.FileName)
	switch {
	case err == nil && doc.Indexed:
		return false, nil
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		doc, err = i.docSvc.Register(ctx, service.RegisterDocumentRequest{FileName: d.FileName, CatalogItemID: &catalogItemID})
		if err != nil {
			return false, err
		}
	default:
		return false, err
	}

	path := d.Path
	if path == "" {
		path = d.FileName
	}
	text, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		return false, err
	}
	if _, err := i.docSvc.Ingest(ctx, doc.ID, string(text), false); err != nil {
		return false, err
	}
	return true, nil
}
