package main

import (
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/klarbuch/gobd/backend/internal/gobd/adapter/repo"
	"github.com/klarbuch/gobd/backend/internal/gobd/api"
	"github.com/klarbuch/gobd/backend/internal/gobd/service"
	"github.com/klarbuch/gobd/backend/internal/platform/database"
	"github.com/klarbuch/gobd/backend/internal/platform/logger"
	"github.com/klarbuch/gobd/backend/internal/platform/server"
)

func main() {
	// 1. 加载配置
	viper.SetConfigFile("../../configs/config.yaml")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}

	// 2. 初始化基础设施 (Infra)
	// Logger
	appLogger := logger.NewLogger(viper.GetString("server.mode"))
	// Database
	dsn := viper.GetString("database.dsn")
	max_idle_conns := viper.GetInt("database.max_idle_conns")
	max_open_conns := viper.GetInt("database.max_open_conns")
	db := database.NewPostgresDB(dsn, max_idle_conns, max_open_conns)

	// 3. 依赖注入 (Wiring)
	// -- GoBD Module --
	documentRepo := repo.NewDocumentRepo(db)
	periodLockRepo := repo.NewPeriodLockRepo(db)
	auditRepo := repo.NewAuditRepo(db)
	settingsRepo := repo.NewSettingsRepo(db)

	lockSvc := service.NewLockService(db, documentRepo, auditRepo, settingsRepo, appLogger)
	periodSvc := service.NewPeriodLockService(db, documentRepo, periodLockRepo, lockSvc, appLogger)
	correctionSvc := service.NewCorrectionService(db, documentRepo, auditRepo, settingsRepo, appLogger)
	reportSvc := service.NewReportService(documentRepo, settingsRepo, appLogger)
	settingsSvc := service.NewSettingsService(settingsRepo, appLogger)

	gobdHandler := api.NewGoBDHandler(lockSvc, periodSvc, correctionSvc, reportSvc, settingsSvc)

	// 4. 初始化 Server (Gateway)
	// 将 Handler 注入到 Server 中
	srv := server.NewServer(
		appLogger,
		viper.GetString("server.port"),
		viper.GetString("server.mode"),
		gobdHandler,
	)

	// 5. 启动服务
	if err := srv.Run(); err != nil {
		appLogger.Fatal("Server startup failed", zap.Error(err))
	}
}
