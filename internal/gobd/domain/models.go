package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverdueGraceDays 合规宽限期：创建后超过 30 天仍未锁定即视为超期 (仅报告信号，不阻塞业务)
const OverdueGraceDays = 30

// FinancialDocument 财务凭证实体
// 对应数据库表: gobd_financial_documents
// 锁定后财务字段不可变更，只能通过冲销/贷项凭证做补偿
type FinancialDocument struct {
	ID             string          `gorm:"primaryKey;type:uuid"`
	CompanyID      string          `gorm:"type:varchar(64);not null;index;uniqueIndex:ux_company_docnum"`
	DocumentNumber string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_company_docnum"`
	Type           DocumentType    `gorm:"type:varchar(16);not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Counterparty   string          `gorm:"type:varchar(128)"`

	// 锁定元数据 (Festschreibung)
	IsLocked   bool        `gorm:"not null;default:false;index"`
	LockedAt   *time.Time  `gorm:""`
	LockedBy   *string     `gorm:"type:varchar(64)"`
	LockReason *LockReason `gorm:"type:varchar(32)"`

	// 补偿凭证关联 (每个原始凭证最多各一个)
	StornoDocumentID *string `gorm:"type:uuid"`
	CreditNoteID     *string `gorm:"type:uuid"`

	Version   int64 `gorm:"not null;default:1"` // 乐观锁
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FinancialDocument) TableName() string {
	return "gobd_financial_documents"
}

// State 由字段推导出状态机当前状态
func (d *FinancialDocument) State() LockState {
	switch {
	case !d.IsLocked:
		return StateOpen
	case d.StornoDocumentID != nil:
		return StateLockedWithStorno
	case d.CreditNoteID != nil:
		return StateLockedWithCredit
	default:
		return StateLocked
	}
}

// HasCorrection 是否已存在冲销或贷项凭证关联
func (d *FinancialDocument) HasCorrection() bool {
	return d.StornoDocumentID != nil || d.CreditNoteID != nil
}

// PeriodLock 期间批量锁定的审计记录
// 对应数据库表: gobd_period_locks
// 只追加，创建后永不修改 (即使其中某个凭证事后被审批解锁)
type PeriodLock struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	CompanyID     string    `gorm:"type:varchar(64);not null;index"`
	PeriodFrom    time.Time `gorm:"not null"`
	PeriodTo      time.Time `gorm:"not null"`
	DocumentTypes []byte    `gorm:"type:jsonb"` // 类型过滤器，JSON 数组；空表示全部类型
	ActorID       string    `gorm:"type:varchar(64);not null"`
	LockedIDs     []byte    `gorm:"type:jsonb"` // 本次操作新锁定的凭证 ID 列表 (用于审计回放)
	CreatedAt     time.Time
}

func (PeriodLock) TableName() string {
	return "gobd_period_locks"
}

// AuditEntry 审计日志行，只追加、永不删除
// 对应数据库表: gobd_audit_entries
// 一条凭证的 AuditEntry 序列是权威历史，凭证上的锁定字段只是派生缓存
type AuditEntry struct {
	ID         string      `gorm:"primaryKey;type:uuid"`
	CompanyID  string      `gorm:"type:varchar(64);not null;index"`
	DocumentID string      `gorm:"type:uuid;not null;index"`
	Action     AuditAction `gorm:"type:varchar(32);not null"`
	ActorID    string      `gorm:"type:varchar(64);not null"`
	Reason     string      `gorm:"type:text"`
	CreatedAt  time.Time
}

func (AuditEntry) TableName() string {
	return "gobd_audit_entries"
}

// Settings 租户级 GoBD 策略配置
// 对应数据库表: gobd_settings
// 每个操作入口读取一次快照，操作中途不再重读
type Settings struct {
	CompanyID                string `gorm:"primaryKey;type:varchar(64)"`
	AutoLockOnSend           bool   `gorm:"not null;default:true"`
	AutoLockOnExport         bool   `gorm:"not null;default:true"`
	AllowStornoAfterLock     bool   `gorm:"not null;default:true"`
	AllowUnlock              bool   `gorm:"not null;default:true"`
	RequireApprovalForUnlock bool   `gorm:"not null;default:true"`

	// 通知开关，与核心不变量正交
	NotifyOnAutoLock bool `gorm:"not null;default:false"`
	NotifyOnOverdue  bool `gorm:"not null;default:true"`

	UpdatedBy string `gorm:"type:varchar(64)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Settings) TableName() string {
	return "gobd_settings"
}

// DefaultSettings 租户尚未配置时的保守默认值
// 自动锁定开启、解锁需审批，对应 GoBD 合规的默认姿态
func DefaultSettings(companyID string) *Settings {
	return &Settings{
		CompanyID:                companyID,
		AutoLockOnSend:           true,
		AutoLockOnExport:         true,
		AllowStornoAfterLock:     true,
		AllowUnlock:              true,
		RequireApprovalForUnlock: true,
		NotifyOnOverdue:          true,
	}
}
