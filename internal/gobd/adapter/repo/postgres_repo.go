package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

type PostgresDocumentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

func (r *PostgresDocumentRepo) FindByID(ctx context.Context, companyID, id string) (*domain.FinancialDocument, error) {
	var doc domain.FinancialDocument
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *PostgresDocumentRepo) FindByPeriod(ctx context.Context, companyID string, from, to time.Time, types []domain.DocumentType) ([]domain.FinancialDocument, error) {
	q := r.db.WithContext(ctx).
		Where("company_id = ? AND created_at >= ? AND created_at <= ?", companyID, from, to)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var docs []domain.FinancialDocument
	if err := q.Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *PostgresDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *domain.FinancialDocument) error {
	// 注意：必须使用传入的 tx (事务会话)，而不是 r.db
	return tx.WithContext(ctx).Create(doc).Error
}

// SetLock 实现乐观锁锁定
// SQL: UPDATE ... SET is_locked=true, ... , version=version+1
//
//	WHERE id = ? AND version = ? AND is_locked = false
func (r *PostgresDocumentRepo) SetLock(ctx context.Context, tx *gorm.DB, id string, version int64, actorID string, reason domain.LockReason, lockedAt time.Time) error {
	result := tx.WithContext(ctx).Model(&domain.FinancialDocument{}).
		Where("id = ? AND version = ? AND is_locked = ?", id, version, false).
		Updates(map[string]interface{}{
			"is_locked":   true,
			"locked_at":   lockedAt,
			"locked_by":   actorID,
			"lock_reason": reason,
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	// 关键点：没有行被更新，说明 version 不匹配或已被并发方锁定
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PostgresDocumentRepo) ClearLock(ctx context.Context, tx *gorm.DB, id string, version int64) error {
	result := tx.WithContext(ctx).Model(&domain.FinancialDocument{}).
		Where("id = ? AND version = ? AND is_locked = ?", id, version, true).
		Updates(map[string]interface{}{
			"is_locked":   false,
			"locked_at":   nil,
			"locked_by":   nil,
			"lock_reason": nil,
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PostgresDocumentRepo) LinkStorno(ctx context.Context, tx *gorm.DB, originalID string, version int64, stornoID string) error {
	result := tx.WithContext(ctx).Model(&domain.FinancialDocument{}).
		Where("id = ? AND version = ? AND storno_document_id IS NULL", originalID, version).
		Updates(map[string]interface{}{
			"storno_document_id": stornoID,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PostgresDocumentRepo) LinkCreditNote(ctx context.Context, tx *gorm.DB, originalID string, version int64, creditNoteID string) error {
	result := tx.WithContext(ctx).Model(&domain.FinancialDocument{}).
		Where("id = ? AND version = ? AND credit_note_id IS NULL", originalID, version).
		Updates(map[string]interface{}{
			"credit_note_id": creditNoteID,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ---------------------------------------------------------

type PostgresPeriodLockRepo struct {
	db *gorm.DB
}

func NewPeriodLockRepo(db *gorm.DB) *PostgresPeriodLockRepo {
	return &PostgresPeriodLockRepo{db: db}
}

func (r *PostgresPeriodLockRepo) Create(ctx context.Context, tx *gorm.DB, lock *domain.PeriodLock) error {
	return tx.WithContext(ctx).Create(lock).Error
}

func (r *PostgresPeriodLockRepo) ListByCompany(ctx context.Context, companyID string) ([]domain.PeriodLock, error) {
	var locks []domain.PeriodLock
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&locks).Error
	return locks, err
}

// ---------------------------------------------------------

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Create(ctx context.Context, tx *gorm.DB, entry *domain.AuditEntry) error {
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *PostgresAuditRepo) ListByDocument(ctx context.Context, companyID, documentID string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND document_id = ?", companyID, documentID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ---------------------------------------------------------

type PostgresSettingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

func (r *PostgresSettingsRepo) Find(ctx context.Context, companyID string) (*domain.Settings, error) {
	var s domain.Settings
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSettingsRepo) Save(ctx context.Context, settings *domain.Settings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
