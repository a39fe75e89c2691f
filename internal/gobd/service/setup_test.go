package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/adapter/repo"
	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
	"github.com/klarbuch/gobd/backend/internal/gobd/service"
)

const testCompany = "company-001"

// testEnv 用真实的 gorm 仓储跑在内存 sqlite 上，
// 条件更新 (CAS) 语义和 postgres 一致，可以被测试覆盖到
type testEnv struct {
	db *gorm.DB

	documentRepo   *repo.PostgresDocumentRepo
	periodLockRepo *repo.PostgresPeriodLockRepo
	auditRepo      *repo.PostgresAuditRepo
	settingsRepo   *repo.PostgresSettingsRepo

	lockSvc       *service.LockService
	periodSvc     *service.PeriodLockService
	correctionSvc *service.CorrectionService
	reportSvc     *service.ReportService
	settingsSvc   *service.SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// 内存库只允许单连接，避免连接池拿到不同的 :memory: 实例
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.FinancialDocument{},
		&domain.PeriodLock{},
		&domain.AuditEntry{},
		&domain.Settings{},
	))

	env := &testEnv{
		db:             db,
		documentRepo:   repo.NewDocumentRepo(db),
		periodLockRepo: repo.NewPeriodLockRepo(db),
		auditRepo:      repo.NewAuditRepo(db),
		settingsRepo:   repo.NewSettingsRepo(db),
	}

	logger := zap.NewNop()
	env.lockSvc = service.NewLockService(db, env.documentRepo, env.auditRepo, env.settingsRepo, logger)
	env.periodSvc = service.NewPeriodLockService(db, env.documentRepo, env.periodLockRepo, env.lockSvc, logger)
	env.correctionSvc = service.NewCorrectionService(db, env.documentRepo, env.auditRepo, env.settingsRepo, logger)
	env.reportSvc = service.NewReportService(env.documentRepo, env.settingsRepo, logger)
	env.settingsSvc = service.NewSettingsService(env.settingsRepo, logger)

	return env
}

// createDocument 直接插入一条 OPEN 状态的测试凭证
func (e *testEnv) createDocument(t *testing.T, number, amount string, createdAt time.Time) *domain.FinancialDocument {
	t.Helper()
	doc := &domain.FinancialDocument{
		ID:             uuid.NewString(),
		CompanyID:      testCompany,
		DocumentNumber: number,
		Type:           domain.TypeInvoice,
		Amount:         decimal.RequireFromString(amount),
		Counterparty:   "Muster GmbH",
		Version:        1,
		CreatedAt:      createdAt,
	}
	require.NoError(t, e.documentRepo.Create(context.Background(), e.db, doc))
	return doc
}

// saveSettings 写入租户配置，mutate 在保守默认值基础上做调整
func (e *testEnv) saveSettings(t *testing.T, mutate func(*domain.Settings)) {
	t.Helper()
	s := domain.DefaultSettings(testCompany)
	mutate(s)
	require.NoError(t, e.settingsRepo.Save(context.Background(), s))
}

// auditEntries 过滤出某条凭证上指定动作的审计日志
func (e *testEnv) auditEntries(t *testing.T, documentID string, action domain.AuditAction) []domain.AuditEntry {
	t.Helper()
	all, err := e.auditRepo.ListByDocument(context.Background(), testCompany, documentID)
	require.NoError(t, err)
	var filtered []domain.AuditEntry
	for _, entry := range all {
		if entry.Action == action {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// reload 重读凭证当前状态
func (e *testEnv) reload(t *testing.T, documentID string) *domain.FinancialDocument {
	t.Helper()
	doc, err := e.documentRepo.FindByID(context.Background(), testCompany, documentID)
	require.NoError(t, err)
	return doc
}
