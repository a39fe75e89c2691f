package domain

import "errors"

// 领域错误分类，上层用 errors.Is 匹配后映射为用户可见信息
// 基础设施错误 (gorm / 网络) 不在此列，原样向上传播
var (
	// ErrDocumentNotFound 凭证 ID 不存在
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentNotLocked 对未锁定凭证发起补偿操作
	ErrDocumentNotLocked = errors.New("document is not locked")

	// ErrDocumentLocked 对已锁定凭证发起编辑类操作
	ErrDocumentLocked = errors.New("document is locked and immutable")

	// ErrCorrectionExists 冲销或贷项凭证已存在 (每个原始凭证最多各一个)
	ErrCorrectionExists = errors.New("correction document already exists")

	// ErrInvalidAmount 贷项金额不合法 (<=0 或超过原始金额)
	ErrInvalidAmount = errors.New("invalid correction amount")

	// ErrApprovalRequired 解锁需要审批令牌但未提供
	ErrApprovalRequired = errors.New("unlock requires approval")

	// ErrUnlockNotPermitted 策略完全禁止解锁
	ErrUnlockNotPermitted = errors.New("unlock not permitted by policy")

	// ErrStornoNotPermitted 策略禁止对锁定凭证创建冲销
	ErrStornoNotPermitted = errors.New("storno not permitted by policy")

	// ErrEmptyFilterResult 期间锁定的过滤条件没有匹配到任何凭证
	// 空结果视为错误而非静默成功，便于发现过滤条件写错
	ErrEmptyFilterResult = errors.New("no documents matched the period filter")

	// ErrConflict 乐观锁冲突：并发方先完成了不兼容的状态变更
	ErrConflict = errors.New("concurrent modification conflict")
)
