package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DocumentRepository 凭证仓储接口
// Port (端口)，由基础设施层的 gorm Adapter 实现
// 所有状态变更都是按 id+version 的条件更新 (单行 CAS)，并发方竞争安全
type DocumentRepository interface {
	// FindByID 按 ID 查询凭证，不存在时返回 ErrDocumentNotFound
	FindByID(ctx context.Context, companyID, id string) (*FinancialDocument, error)

	// FindByPeriod 查询创建时间落在 [from, to] 内的凭证，types 为空表示全部类型
	FindByPeriod(ctx context.Context, companyID string, from, to time.Time, types []DocumentType) ([]FinancialDocument, error)

	// Create 插入新凭证 (补偿凭证在事务内创建时使用)
	Create(ctx context.Context, tx *gorm.DB, doc *FinancialDocument) error

	// SetLock 条件更新：仅当 version 匹配且仍未锁定时写入锁定字段
	// 没有行被更新时返回 ErrConflict
	SetLock(ctx context.Context, tx *gorm.DB, id string, version int64, actorID string, reason LockReason, lockedAt time.Time) error

	// ClearLock 条件更新：仅当 version 匹配且已锁定时清除锁定字段
	ClearLock(ctx context.Context, tx *gorm.DB, id string, version int64) error

	// LinkStorno 条件更新：在原始凭证上登记冲销凭证 ID (要求尚未登记)
	LinkStorno(ctx context.Context, tx *gorm.DB, originalID string, version int64, stornoID string) error

	// LinkCreditNote 条件更新：在原始凭证上登记贷项凭证 ID (要求尚未登记)
	LinkCreditNote(ctx context.Context, tx *gorm.DB, originalID string, version int64, creditNoteID string) error
}

// PeriodLockRepository 期间锁定记录仓储接口，只追加
type PeriodLockRepository interface {
	Create(ctx context.Context, tx *gorm.DB, lock *PeriodLock) error
	ListByCompany(ctx context.Context, companyID string) ([]PeriodLock, error)
}

// AuditRepository 审计日志仓储接口，只追加、永不删除
type AuditRepository interface {
	// Create 在状态变更的同一事务内追加一条日志 (保证状态与日志一致)
	Create(ctx context.Context, tx *gorm.DB, entry *AuditEntry) error

	// ListByDocument 按时间顺序返回一条凭证的完整审计历史
	ListByDocument(ctx context.Context, companyID, documentID string) ([]AuditEntry, error)
}

// SettingsRepository 租户策略配置仓储接口
type SettingsRepository interface {
	// Find 查询租户配置，尚未配置时返回 gorm.ErrRecordNotFound
	Find(ctx context.Context, companyID string) (*Settings, error)

	// Save 整体写入配置 (存在则更新)
	Save(ctx context.Context, settings *Settings) error
}
