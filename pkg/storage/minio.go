// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ExtractedObjectName 返回文档提取文本的归档路径。
func ExtractedObjectName(documentID uint) string {
	return fmt.Sprintf("extracted/%d.txt", documentID)
}

// Archive 在一个存储桶中保存原始文件与提取后的文本。
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive 创建 MinIO 客户端并确保存储桶存在。
func NewArchive(ctx context.Context, cfg config.MinIOConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &Archive{client: client, bucket: cfg.BucketName}, nil
}

// PutText 以 UTF-8 纯文本写入对象。
func (a *Archive) PutText(ctx context.Context, objectName, text string) error {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectName, err)
	}
	return nil
}

// Open 打开对象用于读取，调用方负责关闭。
func (a *Archive) Open(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if _, err := a.client.StatObject(ctx, a.bucket, objectName, minio.StatObjectOptions{}); err != nil {
		return nil, a.wrap(objectName, err)
	}
	obj, err := a.client.GetObject(ctx, a.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, a.wrap(objectName, err)
	}
	return obj, nil
}

// GetText 读取整个文本对象。
func (a *Archive) GetText(ctx context.Context, objectName string) (string, error) {
	obj, err := a.Open(ctx, objectName)
	if err != nil {
		return "", err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return "", a.wrap(objectName, err)
	}
	return string(data), nil
}

// Remove 删除对象，对象不存在时不报错。
func (a *Archive) Remove(ctx context.Context, objectName string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(a.wrap(objectName, err), ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", objectName, err)
	}
	return nil
}

func (a *Archive) wrap(objectName string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", objectName, ErrObjectNotFound)
	}
	return fmt.Errorf("object %s: %w", objectName, err)
}
