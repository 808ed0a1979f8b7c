// @title 在线考试后端 API
// @version 1.0
// @description 限时考试、分区计时、自动评分与人工评分的后端服务。

// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"log"

	"assessment_backend/internal/app"
	"assessment_backend/internal/config"
)

func main() {
	// 命令行参数
	role := flag.String("role", config.RoleAll, "运行角色：api | worker | all")
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	switch *role {
	case config.RoleAPI, config.RoleWorker, config.RoleAll:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly
	cfg.Role = *role

	application := app.NewApp(cfg)

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
