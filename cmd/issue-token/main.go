// Package main 为已登记的用户签发访问令牌。账号由外部系统维护，这里不做密码校验。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/database"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	username := flag.String("user", "", "用户名")
	flag.Parse()

	if err := run(*configPath, *username); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, username string) error {
	if username == "" {
		return fmt.Errorf("缺少 -user 参数")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// 令牌打印到标准输出，日志只写错误
	if err := log.Init("error", "console", ""); err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.OpenDB(cfg.Database)
	if err != nil {
		return err
	}
	defer database.CloseDB(db)

	user, err := repository.NewUserRepository(db).FindByUsername(context.Background(), username)
	if err != nil {
		return fmt.Errorf("查找用户 %s 失败: %w", username, err)
	}
	tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).
		GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return fmt.Errorf("生成 token 失败: %w", err)
	}
	fmt.Println(tok)
	return nil
}
