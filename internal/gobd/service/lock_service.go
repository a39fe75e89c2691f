package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

// LockResult 锁定操作的返回 DTO
// AlreadyLocked=true 表示幂等命中：凭证早已锁定，本次调用未写任何状态
type LockResult struct {
	DocumentID    string
	State         domain.LockState
	AlreadyLocked bool
	LockedAt      time.Time
	LockedBy      string
	LockReason    domain.LockReason
}

// UnlockResult 解锁操作的返回 DTO
type UnlockResult struct {
	DocumentID string
	State      domain.LockState
	UnlockedAt time.Time
}

// LockStatus 对 UI 暴露的锁定状态查询结果
type LockStatus struct {
	DocumentID       string
	State            domain.LockState
	IsLocked         bool
	LockedAt         *time.Time
	LockedBy         *string
	LockReason       *domain.LockReason
	StornoDocumentID *string
	CreditNoteID     *string
}

// LockService 锁定状态机核心服务
// 状态迁移: OPEN -> LOCKED -> (LOCKED_WITH_STORNO | LOCKED_WITH_CREDIT)
// 以及审批门控下的旁路: LOCKED -> OPEN
type LockService struct {
	db           *gorm.DB // 用于开启事务
	documentRepo domain.DocumentRepository
	auditRepo    domain.AuditRepository
	settingsRepo domain.SettingsRepository
	logger       *zap.Logger
}

func NewLockService(db *gorm.DB, docRepo domain.DocumentRepository, auditRepo domain.AuditRepository, settingsRepo domain.SettingsRepository, logger *zap.Logger) *LockService {
	return &LockService{
		db:           db,
		documentRepo: docRepo,
		auditRepo:    auditRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

// snapshotSettings 操作入口读取一次租户配置，中途不再重读
func (s *LockService) snapshotSettings(ctx context.Context, companyID string) (*domain.Settings, error) {
	settings, err := s.settingsRepo.Find(ctx, companyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultSettings(companyID), nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Lock 锁定凭证 (Festschreibung)
// 幂等：已锁定的凭证直接返回既有元数据，不报错、不追加审计日志
// 多个 UI 动作 (发送+导出) 可能同时竞争锁定同一凭证，幂等避免了虚假失败
func (s *LockService) Lock(ctx context.Context, companyID, documentID, actorID string, reason domain.LockReason) (*LockResult, error) {
	doc, err := s.documentRepo.FindByID(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}

	// 幂等命中 (快速返回)
	if doc.IsLocked {
		return lockResultFrom(doc, true), nil
	}

	now := time.Now()

	// 状态变更 + 审计日志在同一事务内 (没有审计记录就没有状态变更)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.documentRepo.SetLock(ctx, tx, doc.ID, doc.Version, actorID, reason, now); err != nil {
			return err
		}
		return s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  companyID,
			DocumentID: doc.ID,
			Action:     domain.AuditLocked,
			ActorID:    actorID,
			Reason:     string(reason),
			CreatedAt:  now,
		})
	})

	if errors.Is(err, domain.ErrConflict) {
		// CAS 输给了并发方：重读一次，若对方已完成锁定则按幂等成功处理
		fresh, ferr := s.documentRepo.FindByID(ctx, companyID, documentID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.IsLocked {
			return lockResultFrom(fresh, true), nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("document locked",
		zap.String("company_id", companyID),
		zap.String("document_id", doc.ID),
		zap.String("reason", string(reason)),
		zap.String("actor", actorID),
	)

	return &LockResult{
		DocumentID: doc.ID,
		State:      domain.StateLocked,
		LockedAt:   now,
		LockedBy:   actorID,
		LockReason: reason,
	}, nil
}

// Unlock 审批门控下的解锁
// 校验顺序：策略是否允许 -> 审批令牌 -> 补偿凭证关联 -> 实际状态
// 已有冲销/贷项关联的凭证无论审批与否都拒绝解锁，避免孤儿化补偿历史
func (s *LockService) Unlock(ctx context.Context, companyID, documentID, actorID, justification, approvalToken string) (*UnlockResult, error) {
	settings, err := s.snapshotSettings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !settings.AllowUnlock {
		return nil, domain.ErrUnlockNotPermitted
	}
	if settings.RequireApprovalForUnlock && approvalToken == "" {
		return nil, domain.ErrApprovalRequired
	}

	doc, err := s.documentRepo.FindByID(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.HasCorrection() {
		return nil, domain.ErrCorrectionExists
	}
	if !doc.IsLocked {
		// 本来就未锁定：无状态可变更，不追加审计日志
		return &UnlockResult{DocumentID: doc.ID, State: domain.StateOpen}, nil
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.documentRepo.ClearLock(ctx, tx, doc.ID, doc.Version); err != nil {
			return err
		}
		return s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  companyID,
			DocumentID: doc.ID,
			Action:     domain.AuditUnlocked,
			ActorID:    actorID,
			Reason:     justification,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("document unlocked",
		zap.String("company_id", companyID),
		zap.String("document_id", doc.ID),
		zap.String("actor", actorID),
		zap.String("justification", justification),
	)

	return &UnlockResult{DocumentID: doc.ID, State: domain.StateOpen, UnlockedAt: now}, nil
}

// IsEditable 纯查询：仅 OPEN 状态可编辑
// 上游的编辑路径必须先过这一关，锁定检查无条件先于字段校验
func (s *LockService) IsEditable(ctx context.Context, companyID, documentID string) (bool, error) {
	doc, err := s.documentRepo.FindByID(ctx, companyID, documentID)
	if err != nil {
		return false, err
	}
	return !doc.IsLocked, nil
}

// EnsureEditable 上游编辑/删除路径的统一门卫
// 必须在任何字段级校验之前调用；锁定凭证一律返回 ErrDocumentLocked
func (s *LockService) EnsureEditable(ctx context.Context, companyID, documentID string) error {
	doc, err := s.documentRepo.FindByID(ctx, companyID, documentID)
	if err != nil {
		return err
	}
	if doc.IsLocked {
		return domain.ErrDocumentLocked
	}
	return nil
}

// GetLockStatus 对 UI 暴露的完整锁定状态
func (s *LockService) GetLockStatus(ctx context.Context, companyID, documentID string) (*LockStatus, error) {
	doc, err := s.documentRepo.FindByID(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	return &LockStatus{
		DocumentID:       doc.ID,
		State:            doc.State(),
		IsLocked:         doc.IsLocked,
		LockedAt:         doc.LockedAt,
		LockedBy:         doc.LockedBy,
		LockReason:       doc.LockReason,
		StornoDocumentID: doc.StornoDocumentID,
		CreditNoteID:     doc.CreditNoteID,
	}, nil
}

// ListAuditTrail 按时间顺序返回凭证的权威审计历史
func (s *LockService) ListAuditTrail(ctx context.Context, companyID, documentID string) ([]domain.AuditEntry, error) {
	if _, err := s.documentRepo.FindByID(ctx, companyID, documentID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByDocument(ctx, companyID, documentID)
}

// OnDocumentSent 外部触发钩子：凭证被发送 (邮件等)
// 是否锁定由租户配置 autoLockOnSend 决定；关闭时是显式 no-op
func (s *LockService) OnDocumentSent(ctx context.Context, companyID, documentID, actorID string) (*LockResult, error) {
	settings, err := s.snapshotSettings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !settings.AutoLockOnSend {
		return nil, nil
	}
	return s.Lock(ctx, companyID, documentID, actorID, domain.ReasonAutoOnSend)
}

// OnDocumentExported 外部触发钩子：凭证被导出 (会计师接口等)
func (s *LockService) OnDocumentExported(ctx context.Context, companyID, documentID, actorID string) (*LockResult, error) {
	settings, err := s.snapshotSettings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !settings.AutoLockOnExport {
		return nil, nil
	}
	return s.Lock(ctx, companyID, documentID, actorID, domain.ReasonAutoOnExport)
}

func lockResultFrom(doc *domain.FinancialDocument, alreadyLocked bool) *LockResult {
	res := &LockResult{
		DocumentID:    doc.ID,
		State:         doc.State(),
		AlreadyLocked: alreadyLocked,
	}
	if doc.LockedAt != nil {
		res.LockedAt = *doc.LockedAt
	}
	if doc.LockedBy != nil {
		res.LockedBy = *doc.LockedBy
	}
	if doc.LockReason != nil {
		res.LockReason = *doc.LockReason
	}
	return res
}
