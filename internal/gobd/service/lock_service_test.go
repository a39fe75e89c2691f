package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

func TestLockIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-001", "1190.00", time.Now())

	first, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)
	assert.False(t, first.AlreadyLocked)
	assert.Equal(t, domain.StateLocked, first.State)
	assert.Equal(t, "user-1", first.LockedBy)

	// 第二次用不同的合法原因重复锁定：成功返回既有元数据，不报错
	second, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-2", domain.ReasonAutoOnSend)
	require.NoError(t, err)
	assert.True(t, second.AlreadyLocked)
	assert.Equal(t, "user-1", second.LockedBy)
	assert.Equal(t, domain.ReasonManual, second.LockReason)

	// 恰好一条 locked 审计日志 (按实际迁移计数，不按调用次数)
	locked := env.auditEntries(t, doc.ID, domain.AuditLocked)
	assert.Len(t, locked, 1)

	reloaded := env.reload(t, doc.ID)
	assert.True(t, reloaded.IsLocked)
	require.NotNil(t, reloaded.LockReason)
	assert.Equal(t, domain.ReasonManual, *reloaded.LockReason)
}

func TestLockUnknownDocument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.lockSvc.Lock(context.Background(), testCompany, "missing-id", "user-1", domain.ReasonManual)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestIsEditableFollowsLockState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-002", "500.00", time.Now())

	editable, err := env.lockSvc.IsEditable(ctx, testCompany, doc.ID)
	require.NoError(t, err)
	assert.True(t, editable)

	_, err = env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	// 锁定后编辑路径必须被拒绝
	editable, err = env.lockSvc.IsEditable(ctx, testCompany, doc.ID)
	require.NoError(t, err)
	assert.False(t, editable)

	status, err := env.lockSvc.GetLockStatus(ctx, testCompany, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateLocked, status.State)
	assert.True(t, status.IsLocked)
	require.NotNil(t, status.LockedAt)

	// 上游编辑路径的门卫：锁定检查先于任何字段校验
	assert.ErrorIs(t, env.lockSvc.EnsureEditable(ctx, testCompany, doc.ID), domain.ErrDocumentLocked)
}

func TestUnlockRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-003", "250.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	// 默认策略：解锁需要审批令牌
	_, err = env.lockSvc.Unlock(ctx, testCompany, doc.ID, "admin-1", "Tippfehler im Betrag", "")
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	res, err := env.lockSvc.Unlock(ctx, testCompany, doc.ID, "admin-1", "Tippfehler im Betrag", "approval-token-42")
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, res.State)

	reloaded := env.reload(t, doc.ID)
	assert.False(t, reloaded.IsLocked)
	assert.Nil(t, reloaded.LockedAt)
	assert.Nil(t, reloaded.LockReason)

	unlockedEntries := env.auditEntries(t, doc.ID, domain.AuditUnlocked)
	require.Len(t, unlockedEntries, 1)
	assert.Equal(t, "Tippfehler im Betrag", unlockedEntries[0].Reason)
}

func TestUnlockNotPermittedByPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveSettings(t, func(s *domain.Settings) { s.AllowUnlock = false })

	doc := env.createDocument(t, "R-2026-004", "99.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	_, err = env.lockSvc.Unlock(ctx, testCompany, doc.ID, "admin-1", "egal", "approval-token")
	assert.ErrorIs(t, err, domain.ErrUnlockNotPermitted)
	assert.True(t, env.reload(t, doc.ID).IsLocked)
}

func TestUnlockRejectedWhenCorrectionExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-005", "1190.00", time.Now())
	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	_, err = env.correctionSvc.CreateStorno(ctx, stornoReq(doc.ID, "Falsche Rechnung"))
	require.NoError(t, err)

	// 即使审批令牌有效：补偿历史不能被孤儿化
	_, err = env.lockSvc.Unlock(ctx, testCompany, doc.ID, "admin-1", "bitte", "approval-token")
	assert.ErrorIs(t, err, domain.ErrCorrectionExists)
}

func TestAutoLockHooks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveSettings(t, func(s *domain.Settings) {
		s.AutoLockOnSend = false
		s.AutoLockOnExport = true
	})

	sent := env.createDocument(t, "R-2026-006", "10.00", time.Now())
	res, err := env.lockSvc.OnDocumentSent(ctx, testCompany, sent.ID, "mailer")
	require.NoError(t, err)
	assert.Nil(t, res) // autoLockOnSend 关闭 -> 显式 no-op
	assert.False(t, env.reload(t, sent.ID).IsLocked)

	exported := env.createDocument(t, "R-2026-007", "20.00", time.Now())
	res, err = env.lockSvc.OnDocumentExported(ctx, testCompany, exported.ID, "datev-export")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.AlreadyLocked)

	reloaded := env.reload(t, exported.ID)
	assert.True(t, reloaded.IsLocked)
	require.NotNil(t, reloaded.LockReason)
	assert.Equal(t, domain.ReasonAutoOnExport, *reloaded.LockReason)
}

func TestAuditTrailIsChronological(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createDocument(t, "R-2026-008", "300.00", time.Now())

	_, err := env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)
	_, err = env.lockSvc.Unlock(ctx, testCompany, doc.ID, "admin-1", "Korrektur nötig", "approval-token")
	require.NoError(t, err)
	_, err = env.lockSvc.Lock(ctx, testCompany, doc.ID, "user-1", domain.ReasonManual)
	require.NoError(t, err)

	trail, err := env.lockSvc.ListAuditTrail(ctx, testCompany, doc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.AuditLocked, trail[0].Action)
	assert.Equal(t, domain.AuditUnlocked, trail[1].Action)
	assert.Equal(t, domain.AuditLocked, trail[2].Action)

	_, err = env.lockSvc.ListAuditTrail(ctx, testCompany, "missing-id")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
