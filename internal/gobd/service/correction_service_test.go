package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
	"github.com/klarbuch/gobd/backend/internal/gobd/service"
)

func stornoReq(originalID, reason string) service.StornoRequest {
	return service.StornoRequest{
		CompanyID:  testCompany,
		OriginalID: originalID,
		Reason:     reason,
		StornoDate: time.Now(),
		ActorID:    "user-1",
	}
}

func creditReq(originalID, amount string) service.CreditNoteRequest {
	return service.CreditNoteRequest{
		CompanyID:  testCompany,
		OriginalID: originalID,
		Reason:     "Teilgutschrift nach Reklamation",
		Amount:     decimal.RequireFromString(amount),
		CreditDate: time.Now(),
		ActorID:    "user-1",
	}
}

func TestStornoMirrorsOriginalExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-100", "1190.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	stornoID, err := env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "Falsche Leistungsbeschreibung"))
	require.NoError(t, err)

	// 冲销金额由原始凭证取负派生
	storno := env.reload(t, stornoID)
	assert.True(t, storno.Amount.Equal(decimal.RequireFromString("-1190.00")))
	assert.Equal(t, doc.Type, storno.Type)
	assert.Equal(t, "STORNO-R-2026-100", storno.DocumentNumber)
	assert.True(t, storno.IsLocked)

	original := env.reload(t, doc.ID)
	require.NotNil(t, original.StornoDocumentID)
	assert.Equal(t, stornoID, *original.StornoDocumentID)
	assert.Equal(t, domain.StateLockedWithStorno, original.State())

	// 原始凭证上一条 storno_created，冲销凭证上一条 locked
	assert.Len(t, env.auditEntries(t, doc.ID, domain.AuditStornoCreated), 1)
	assert.Len(t, env.auditEntries(t, stornoID, domain.AuditLocked), 1)

	// 每个原始凭证最多一个冲销
	_, err = env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "nochmal"))
	assert.ErrorIs(t, err, domain.ErrCorrectionExists)
}

func TestStornoRequiresLockedOriginal(t *testing.T) {
	env := newTestEnv(t)
	doc := env.createDocument(t, "R-2026-101", "100.00", time.Now())

	_, err := env.correctionSvc.CreateStorno(context.Background(), stornoReq(doc.ID, "zu früh"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotLocked)

	_, err = env.correctionSvc.CreateStorno(context.Background(), stornoReq("missing-id", "egal"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestStornoBlockedByPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveSettings(t, func(s *domain.Settings) { s.AllowStornoAfterLock = false })

	doc := env.createDocument(t, "R-2026-102", "100.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	_, err = env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "egal"))
	assert.ErrorIs(t, err, domain.ErrStornoNotPermitted)
}

func TestStornoIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-103", "100.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	// 预先占用冲销编号，让事务内的凭证创建撞唯一索引
	env.createDocument(t, "STORNO-R-2026-103", "1.00", time.Now())

	_, err = env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "Kollision"))
	require.Error(t, err)

	// 全部回滚：原始凭证无关联、无审计记录
	original := env.reload(t, doc.ID)
	assert.Nil(t, original.StornoDocumentID)
	assert.Empty(t, env.auditEntries(t, doc.ID, domain.AuditStornoCreated))
}

func TestCreditNoteAmountBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-104", "1190.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	// 贷项不能超过原始金额
	_, err = env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "2000.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// 也不能为零或负数
	_, err = env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "-10.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	creditID, err := env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "500.00"))
	require.NoError(t, err)

	credit := env.reload(t, creditID)
	assert.Equal(t, domain.TypeCreditNote, credit.Type)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, credit.IsLocked) // 贷项凭证出生即锁定

	original := env.reload(t, doc.ID)
	require.NotNil(t, original.CreditNoteID)
	assert.Equal(t, creditID, *original.CreditNoteID)
	assert.Equal(t, domain.StateLockedWithCredit, original.State())

	_, err = env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "100.00"))
	assert.ErrorIs(t, err, domain.ErrCorrectionExists)
}

func TestCreditNoteRequiresLockedOriginal(t *testing.T) {
	env := newTestEnv(t)
	doc := env.createDocument(t, "R-2026-105", "100.00", time.Now())

	_, err := env.correctionSvc.CreateCreditNote(context.Background(), creditReq(doc.ID, "50.00"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotLocked)
}

func TestStornoAndCreditCanCoexist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-106", "1000.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	// 先贷项后冲销：两条链路各自最多一个，互不排斥
	_, err = env.correctionSvc.CreateCreditNote(ctx, creditReq(doc.ID, "200.00"))
	require.NoError(t, err)
	_, err = env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "komplett falsch"))
	require.NoError(t, err)

	original := env.reload(t, doc.ID)
	assert.NotNil(t, original.StornoDocumentID)
	assert.NotNil(t, original.CreditNoteID)
	// 状态机里冲销优先于贷项显示
	assert.Equal(t, domain.StateLockedWithStorno, original.State())
}
