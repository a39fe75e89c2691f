package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

// StornoRequest 冲销 (全额反向) 请求 DTO
type StornoRequest struct {
	CompanyID  string
	OriginalID string
	Reason     string
	StornoDate time.Time
	ActorID    string
}

// CreditNoteRequest 贷项凭证 (部分反向) 请求 DTO
type CreditNoteRequest struct {
	CompanyID  string
	OriginalID string
	Reason     string
	Amount     decimal.Decimal
	CreditDate time.Time
	ActorID    string
}

// CorrectionService 补偿交易引擎
// 锁定后的凭证无法编辑或删除，只能通过冲销/贷项凭证抵消其财务效果
// 两个操作都要求原始凭证处于 LOCKED 状态
type CorrectionService struct {
	db           *gorm.DB
	documentRepo domain.DocumentRepository
	auditRepo    domain.AuditRepository
	settingsRepo domain.SettingsRepository
	logger       *zap.Logger
}

func NewCorrectionService(db *gorm.DB, docRepo domain.DocumentRepository, auditRepo domain.AuditRepository, settingsRepo domain.SettingsRepository, logger *zap.Logger) *CorrectionService {
	return &CorrectionService{
		db:           db,
		documentRepo: docRepo,
		auditRepo:    auditRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

// CreateStorno 创建冲销凭证 (Stornorechnung)
// 冲销金额由原始凭证取负派生，不可独立编辑，保证精确反向
// 创建、锁定、回链三步在同一事务内：不允许出现未关联的半成品冲销凭证
func (s *CorrectionService) CreateStorno(ctx context.Context, req StornoRequest) (string, error) {
	// 1. 策略快照
	settings, err := s.settingsSnapshot(ctx, req.CompanyID)
	if err != nil {
		return "", err
	}
	if !settings.AllowStornoAfterLock {
		return "", domain.ErrStornoNotPermitted
	}

	// 2. 前置条件校验
	original, err := s.documentRepo.FindByID(ctx, req.CompanyID, req.OriginalID)
	if err != nil {
		return "", err
	}
	if !original.IsLocked {
		return "", domain.ErrDocumentNotLocked
	}
	if original.StornoDocumentID != nil {
		return "", domain.ErrCorrectionExists
	}

	// 3. 构造冲销凭证：同类型、金额取负、出生即锁定
	now := time.Now()
	lockedBy := req.ActorID
	lockReason := domain.ReasonManual // 冲销凭证天然终态，按手动锁定记录
	storno := &domain.FinancialDocument{
		ID:             uuid.NewString(),
		CompanyID:      req.CompanyID,
		DocumentNumber: "STORNO-" + original.DocumentNumber,
		Type:           original.Type,
		Amount:         original.Amount.Neg(),
		Counterparty:   original.Counterparty,
		IsLocked:       true,
		LockedAt:       &now,
		LockedBy:       &lockedBy,
		LockReason:     &lockReason,
		CreatedAt:      req.StornoDate,
	}

	// 4. 单一逻辑单元：创建 + 回链 + 审计，全成或全败
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.documentRepo.Create(ctx, tx, storno); err != nil {
			return err
		}
		if err := s.documentRepo.LinkStorno(ctx, tx, original.ID, original.Version, storno.ID); err != nil {
			return err
		}
		// 原始凭证上的 storno_created 记录
		if err := s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  req.CompanyID,
			DocumentID: original.ID,
			Action:     domain.AuditStornoCreated,
			ActorID:    req.ActorID,
			Reason:     req.Reason,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		// 冲销凭证自身的锁定也要留痕
		return s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  req.CompanyID,
			DocumentID: storno.ID,
			Action:     domain.AuditLocked,
			ActorID:    req.ActorID,
			Reason:     string(domain.ReasonManual),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("storno created",
		zap.String("company_id", req.CompanyID),
		zap.String("original_id", original.ID),
		zap.String("storno_id", storno.ID),
		zap.String("amount", storno.Amount.String()),
	)

	return storno.ID, nil
}

// CreateCreditNote 创建贷项凭证 (Gutschrift)
// 贷项只能减少、不能超过原始金额；凭证类型固定为 credit_note，金额独立给定
func (s *CorrectionService) CreateCreditNote(ctx context.Context, req CreditNoteRequest) (string, error) {
	original, err := s.documentRepo.FindByID(ctx, req.CompanyID, req.OriginalID)
	if err != nil {
		return "", err
	}
	if !original.IsLocked {
		return "", domain.ErrDocumentNotLocked
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) || req.Amount.GreaterThan(original.Amount) {
		return "", domain.ErrInvalidAmount
	}
	if original.CreditNoteID != nil {
		return "", domain.ErrCorrectionExists
	}

	now := time.Now()
	lockedBy := req.ActorID
	lockReason := domain.ReasonManual
	credit := &domain.FinancialDocument{
		ID:             uuid.NewString(),
		CompanyID:      req.CompanyID,
		DocumentNumber: "GUTSCHRIFT-" + original.DocumentNumber,
		Type:           domain.TypeCreditNote,
		Amount:         req.Amount,
		Counterparty:   original.Counterparty,
		IsLocked:       true,
		LockedAt:       &now,
		LockedBy:       &lockedBy,
		LockReason:     &lockReason,
		CreatedAt:      req.CreditDate,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.documentRepo.Create(ctx, tx, credit); err != nil {
			return err
		}
		if err := s.documentRepo.LinkCreditNote(ctx, tx, original.ID, original.Version, credit.ID); err != nil {
			return err
		}
		if err := s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  req.CompanyID,
			DocumentID: original.ID,
			Action:     domain.AuditCreditNoteCreated,
			ActorID:    req.ActorID,
			Reason:     req.Reason,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return s.auditRepo.Create(ctx, tx, &domain.AuditEntry{
			ID:         uuid.NewString(),
			CompanyID:  req.CompanyID,
			DocumentID: credit.ID,
			Action:     domain.AuditLocked,
			ActorID:    req.ActorID,
			Reason:     string(domain.ReasonManual),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("credit note created",
		zap.String("company_id", req.CompanyID),
		zap.String("original_id", original.ID),
		zap.String("credit_note_id", credit.ID),
		zap.String("amount", credit.Amount.String()),
	)

	return credit.ID, nil
}

func (s *CorrectionService) settingsSnapshot(ctx context.Context, companyID string) (*domain.Settings, error) {
	settings, err := s.settingsRepo.Find(ctx, companyID)
	if err == nil {
		return settings, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultSettings(companyID), nil
	}
	return nil, err
}
