package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

// SettingsService 租户策略配置的读写入口
// 其他服务在操作入口拿快照；这里只负责显式的管理员读写
type SettingsService struct {
	settingsRepo domain.SettingsRepository
	logger       *zap.Logger
}

func NewSettingsService(settingsRepo domain.SettingsRepository, logger *zap.Logger) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo, logger: logger}
}

// Get 返回租户配置，尚未配置时返回保守默认值
func (s *SettingsService) Get(ctx context.Context, companyID string) (*domain.Settings, error) {
	settings, err := s.settingsRepo.Find(ctx, companyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultSettings(companyID), nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Update 管理员整体覆盖配置
// 对进行中的操作无影响：它们各自持有入口处的快照
func (s *SettingsService) Update(ctx context.Context, companyID string, settings domain.Settings, actorID string) (*domain.Settings, error) {
	settings.CompanyID = companyID
	settings.UpdatedBy = actorID
	settings.UpdatedAt = time.Now()
	if err := s.settingsRepo.Save(ctx, &settings); err != nil {
		return nil, err
	}

	s.logger.Info("gobd settings updated",
		zap.String("company_id", companyID),
		zap.String("actor", actorID),
		zap.Bool("auto_lock_on_send", settings.AutoLockOnSend),
		zap.Bool("auto_lock_on_export", settings.AutoLockOnExport),
		zap.Bool("require_approval_for_unlock", settings.RequireApprovalForUnlock),
	)

	return &settings, nil
}
