package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

// PeriodLockRequest 期间批量锁定的请求 DTO
type PeriodLockRequest struct {
	CompanyID string
	From      time.Time
	To        time.Time
	Types     []domain.DocumentType // 空表示全部类型
	ActorID   string
}

// DocumentError 批量操作中单个凭证的失败记录
type DocumentError struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// PeriodLockResult 批量锁定的汇总结果
// 部分失败不回滚：每个凭证的锁定是独立的原子单元
type PeriodLockResult struct {
	PeriodLockID     string
	LockedIDs        []string        // 本次新锁定
	AlreadyLockedIDs []string        // 早已锁定，幂等跳过
	Failed           []DocumentError // 单个凭证级别的失败
}

// PeriodLockService 期间锁定协调器
// 把锁定状态机套用到一个过滤批次上，并留下一条只追加的 PeriodLock 审计记录
type PeriodLockService struct {
	db             *gorm.DB
	documentRepo   domain.DocumentRepository
	periodLockRepo domain.PeriodLockRepository
	lockSvc        *LockService
	logger         *zap.Logger
}

func NewPeriodLockService(db *gorm.DB, docRepo domain.DocumentRepository, periodLockRepo domain.PeriodLockRepository, lockSvc *LockService, logger *zap.Logger) *PeriodLockService {
	return &PeriodLockService{
		db:             db,
		documentRepo:   docRepo,
		periodLockRepo: periodLockRepo,
		lockSvc:        lockSvc,
		logger:         logger,
	}
}

// LockPeriod 锁定一个期间内所有匹配的凭证
// 算法：解析批次 -> 逐个走状态机 -> 汇总结果 -> 落一条 PeriodLock 记录
// 整体只在过滤结果为空时失败；超时后用同样的过滤条件重调是安全的 (锁定幂等)
func (s *PeriodLockService) LockPeriod(ctx context.Context, req PeriodLockRequest) (*PeriodLockResult, error) {
	// 1. 解析匹配的凭证集合
	docs, err := s.documentRepo.FindByPeriod(ctx, req.CompanyID, req.From, req.To, req.Types)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrEmptyFilterResult
	}

	// 2. 逐个锁定，互不影响 (第 N 个失败不阻塞 N+1..M)
	result := &PeriodLockResult{}
	for _, doc := range docs {
		if doc.IsLocked {
			result.AlreadyLockedIDs = append(result.AlreadyLockedIDs, doc.ID)
			continue
		}
		lockRes, err := s.lockSvc.Lock(ctx, req.CompanyID, doc.ID, req.ActorID, domain.ReasonPeriodLock)
		if err != nil {
			// 例如上游并发删除导致的 DocumentNotFound，防御性记录
			result.Failed = append(result.Failed, DocumentError{DocumentID: doc.ID, Error: err.Error()})
			continue
		}
		if lockRes.AlreadyLocked {
			// 与其他调用方竞争时对方先锁上了，同样按跳过处理
			result.AlreadyLockedIDs = append(result.AlreadyLockedIDs, doc.ID)
			continue
		}
		result.LockedIDs = append(result.LockedIDs, doc.ID)
	}

	// 3. 落一条只追加的 PeriodLock 记录，只列出本次新锁定的凭证
	lockedJSON, err := json.Marshal(result.LockedIDs)
	if err != nil {
		return nil, err
	}
	typesJSON, err := json.Marshal(req.Types)
	if err != nil {
		return nil, err
	}
	record := &domain.PeriodLock{
		ID:            uuid.NewString(),
		CompanyID:     req.CompanyID,
		PeriodFrom:    req.From,
		PeriodTo:      req.To,
		DocumentTypes: typesJSON,
		ActorID:       req.ActorID,
		LockedIDs:     lockedJSON,
		CreatedAt:     time.Now(),
	}
	if err := s.periodLockRepo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	result.PeriodLockID = record.ID

	s.logger.Info("period lock completed",
		zap.String("company_id", req.CompanyID),
		zap.String("period_lock_id", record.ID),
		zap.Int("locked", len(result.LockedIDs)),
		zap.Int("already_locked", len(result.AlreadyLockedIDs)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// ListPeriodLocks 审计回放用：返回租户的全部期间锁定记录
func (s *PeriodLockService) ListPeriodLocks(ctx context.Context, companyID string) ([]domain.PeriodLock, error) {
	return s.periodLockRepo.ListByCompany(ctx, companyID)
}
