package api

// LockReq 手动锁定请求
type LockReq struct {
	Reason string `json:"reason"` // 为空时按 manual 处理
}

// UnlockReq 解锁请求：理由必填，审批令牌按策略可选
type UnlockReq struct {
	Justification string `json:"justification" binding:"required"`
	ApprovalToken string `json:"approval_token"`
}

// StornoReq 冲销请求，冲销日期格式 YYYY-MM-DD
type StornoReq struct {
	Reason     string `json:"reason" binding:"required"`
	StornoDate string `json:"storno_date" binding:"required"`
}

// CreditNoteReq 贷项凭证请求
// 金额必须传字符串，防止 JSON 浮点精度丢失
type CreditNoteReq struct {
	Reason     string `json:"reason" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	CreditDate string `json:"credit_date" binding:"required"`
}

// PeriodLockReq 期间批量锁定请求
type PeriodLockReq struct {
	From  string   `json:"from" binding:"required"` // YYYY-MM-DD
	To    string   `json:"to" binding:"required"`   // YYYY-MM-DD (含当日)
	Types []string `json:"types"`                   // 空数组表示全部类型
}

// SettingsReq 策略配置整体覆盖
type SettingsReq struct {
	AutoLockOnSend           bool `json:"auto_lock_on_send"`
	AutoLockOnExport         bool `json:"auto_lock_on_export"`
	AllowStornoAfterLock     bool `json:"allow_storno_after_lock"`
	AllowUnlock              bool `json:"allow_unlock"`
	RequireApprovalForUnlock bool `json:"require_approval_for_unlock"`
	NotifyOnAutoLock         bool `json:"notify_on_auto_lock"`
	NotifyOnOverdue          bool `json:"notify_on_overdue"`
}
