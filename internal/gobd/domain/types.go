package domain

// DocumentType 财务凭证类型
type DocumentType string

const (
	TypeInvoice    DocumentType = "invoice"     // 发票 (Rechnung)
	TypeVoucher    DocumentType = "voucher"     // 凭证 (Beleg)
	TypePayment    DocumentType = "payment"     // 付款 (Zahlung)
	TypeCreditNote DocumentType = "credit_note" // 贷项凭证 (Gutschrift)
)

// IsValid 校验凭证类型合法性
func (t DocumentType) IsValid() bool {
	switch t {
	case TypeInvoice, TypeVoucher, TypePayment, TypeCreditNote:
		return true
	}
	return false
}

// LockReason 锁定原因 (Festschreibung 的触发来源)
type LockReason string

const (
	ReasonManual       LockReason = "manual"         // 手动锁定
	ReasonAutoOnSend   LockReason = "auto_on_send"   // 发送时自动锁定
	ReasonAutoOnExport LockReason = "auto_on_export" // 导出时自动锁定
	ReasonPeriodLock   LockReason = "period_lock"    // 期间批量锁定
)

func (r LockReason) IsValid() bool {
	switch r {
	case ReasonManual, ReasonAutoOnSend, ReasonAutoOnExport, ReasonPeriodLock:
		return true
	}
	return false
}

// LockState 单个凭证的锁定状态机状态
// OPEN 是初始态；LOCKED_WITH_STORNO / LOCKED_WITH_CREDIT 对原始凭证是终态
type LockState string

const (
	StateOpen             LockState = "OPEN"
	StateLocked           LockState = "LOCKED"
	StateLockedWithStorno LockState = "LOCKED_WITH_STORNO"
	StateLockedWithCredit LockState = "LOCKED_WITH_CREDIT"
)

// AuditAction 审计日志的动作类型
type AuditAction string

const (
	AuditLocked            AuditAction = "locked"
	AuditUnlocked          AuditAction = "unlocked"
	AuditStornoCreated     AuditAction = "storno_created"
	AuditCreditNoteCreated AuditAction = "credit_note_created"
)

// ComplianceStatus 合规报告的整体状态分级
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusWarning      ComplianceStatus = "warning"
	StatusNonCompliant ComplianceStatus = "non_compliant"
)

// IssueSeverity 合规问题的严重程度
// 按超期天数分级：<35 low, <45 medium, <60 high, >=60 critical
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)
