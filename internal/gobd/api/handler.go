package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
	"github.com/klarbuch/gobd/backend/internal/gobd/service"
)

const dateLayout = "2006-01-02"

type GoBDHandler struct {
	lockSvc       *service.LockService
	periodSvc     *service.PeriodLockService
	correctionSvc *service.CorrectionService
	reportSvc     *service.ReportService
	settingsSvc   *service.SettingsService
}

func NewGoBDHandler(
	lockSvc *service.LockService,
	periodSvc *service.PeriodLockService,
	correctionSvc *service.CorrectionService,
	reportSvc *service.ReportService,
	settingsSvc *service.SettingsService,
) *GoBDHandler {
	return &GoBDHandler{
		lockSvc:       lockSvc,
		periodSvc:     periodSvc,
		correctionSvc: correctionSvc,
		reportSvc:     reportSvc,
		settingsSvc:   settingsSvc,
	}
}

// RegisterRoutes 注册路由
// 公司维度从路径取，操作者从网关中间件注入的 x-actor-id 取
func (h *GoBDHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/companies/:companyId/gobd")
	{
		// 锁定状态机
		g.POST("/documents/:id/lock", h.LockDocument)
		g.POST("/documents/:id/unlock", h.UnlockDocument)
		g.GET("/documents/:id/status", h.GetLockStatus)
		g.GET("/documents/:id/editable", h.IsEditable)
		g.GET("/documents/:id/audit", h.ListAuditTrail)

		// 外部触发钩子 (发送 / 导出)
		g.POST("/documents/:id/sent", h.DocumentSent)
		g.POST("/documents/:id/exported", h.DocumentExported)

		// 补偿交易
		g.POST("/documents/:id/storno", h.CreateStorno)
		g.POST("/documents/:id/credit-note", h.CreateCreditNote)

		// 期间批量锁定
		g.POST("/period-locks", h.LockPeriod)
		g.GET("/period-locks", h.ListPeriodLocks)

		// 合规报告
		g.GET("/reports/compliance", h.ComplianceReport)

		// 策略配置
		g.GET("/settings", h.GetSettings)
		g.PUT("/settings", h.UpdateSettings)
	}
}

// statusFor 领域错误 -> HTTP 状态码
// 基础设施错误 (未识别的 err) 一律 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDocumentNotLocked),
		errors.Is(err, domain.ErrDocumentLocked),
		errors.Is(err, domain.ErrCorrectionExists),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrEmptyFilterResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrApprovalRequired),
		errors.Is(err, domain.ErrUnlockNotPermitted),
		errors.Is(err, domain.ErrStornoNotPermitted):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func actorID(c *gin.Context) string {
	return c.GetString("x-actor-id")
}

// LockDocument 手动锁定凭证
// POST /api/v1/companies/:companyId/gobd/documents/:id/lock
func (h *GoBDHandler) LockDocument(c *gin.Context) {
	var req LockReq
	// body 可省略，省略时按 manual 处理
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	reason := domain.LockReason(req.Reason)
	if req.Reason == "" {
		reason = domain.ReasonManual
	}
	if !reason.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lock reason: " + req.Reason})
		return
	}

	res, err := h.lockSvc.Lock(c.Request.Context(), c.Param("companyId"), c.Param("id"), actorID(c), reason)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id":    res.DocumentID,
		"state":          res.State,
		"already_locked": res.AlreadyLocked,
		"locked_at":      res.LockedAt,
		"locked_by":      res.LockedBy,
		"lock_reason":    res.LockReason,
	})
}

// UnlockDocument 审批门控解锁
func (h *GoBDHandler) UnlockDocument(c *gin.Context) {
	var req UnlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	res, err := h.lockSvc.Unlock(c.Request.Context(), c.Param("companyId"), c.Param("id"), actorID(c), req.Justification, req.ApprovalToken)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": res.DocumentID,
		"state":       res.State,
		"unlocked_at": res.UnlockedAt,
	})
}

func (h *GoBDHandler) GetLockStatus(c *gin.Context) {
	status, err := h.lockSvc.GetLockStatus(c.Request.Context(), c.Param("companyId"), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *GoBDHandler) IsEditable(c *gin.Context) {
	editable, err := h.lockSvc.IsEditable(c.Request.Context(), c.Param("companyId"), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "editable": editable})
}

func (h *GoBDHandler) ListAuditTrail(c *gin.Context) {
	entries, err := h.lockSvc.ListAuditTrail(c.Request.Context(), c.Param("companyId"), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "entries": entries})
}

// DocumentSent 发送钩子：是否锁定由租户配置决定
func (h *GoBDHandler) DocumentSent(c *gin.Context) {
	res, err := h.lockSvc.OnDocumentSent(c.Request.Context(), c.Param("companyId"), c.Param("id"), actorID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if res == nil {
		// autoLockOnSend 关闭，显式 no-op
		c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "locked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": res.DocumentID, "locked": true, "already_locked": res.AlreadyLocked})
}

func (h *GoBDHandler) DocumentExported(c *gin.Context) {
	res, err := h.lockSvc.OnDocumentExported(c.Request.Context(), c.Param("companyId"), c.Param("id"), actorID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "locked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": res.DocumentID, "locked": true, "already_locked": res.AlreadyLocked})
}

// CreateStorno 全额冲销
func (h *GoBDHandler) CreateStorno(c *gin.Context) {
	var req StornoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	stornoDate, err := time.Parse(dateLayout, req.StornoDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid storno_date: " + req.StornoDate})
		return
	}

	stornoID, err := h.correctionSvc.CreateStorno(c.Request.Context(), service.StornoRequest{
		CompanyID:  c.Param("companyId"),
		OriginalID: c.Param("id"),
		Reason:     req.Reason,
		StornoDate: stornoDate,
		ActorID:    actorID(c),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"storno_document_id": stornoID, "original_id": c.Param("id")})
}

// CreateCreditNote 部分冲销 (贷项凭证)
func (h *GoBDHandler) CreateCreditNote(c *gin.Context) {
	var req CreditNoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount format: " + req.Amount})
		return
	}
	creditDate, err := time.Parse(dateLayout, req.CreditDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credit_date: " + req.CreditDate})
		return
	}

	creditID, err := h.correctionSvc.CreateCreditNote(c.Request.Context(), service.CreditNoteRequest{
		CompanyID:  c.Param("companyId"),
		OriginalID: c.Param("id"),
		Reason:     req.Reason,
		Amount:     amount,
		CreditDate: creditDate,
		ActorID:    actorID(c),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"credit_note_id": creditID, "original_id": c.Param("id")})
}

// LockPeriod 期间批量锁定
// 部分失败返回 200 并逐条列出，只有空过滤结果才算整体失败
func (h *GoBDHandler) LockPeriod(c *gin.Context) {
	var req PeriodLockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date: " + req.From})
		return
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date: " + req.To})
		return
	}
	// 含当日：上界推到当天最后一纳秒
	to = to.Add(24*time.Hour - time.Nanosecond)

	types := make([]domain.DocumentType, 0, len(req.Types))
	for _, t := range req.Types {
		dt := domain.DocumentType(t)
		if !dt.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document type: " + t})
			return
		}
		types = append(types, dt)
	}

	res, err := h.periodSvc.LockPeriod(c.Request.Context(), service.PeriodLockRequest{
		CompanyID: c.Param("companyId"),
		From:      from,
		To:        to,
		Types:     types,
		ActorID:   actorID(c),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period_lock_id": res.PeriodLockID,
		"locked":         res.LockedIDs,
		"already_locked": res.AlreadyLockedIDs,
		"failed":         res.Failed,
	})
}

func (h *GoBDHandler) ListPeriodLocks(c *gin.Context) {
	locks, err := h.periodSvc.ListPeriodLocks(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_locks": locks})
}

// ComplianceReport 合规报告
// GET .../reports/compliance?from=2026-01-01&to=2026-01-31
func (h *GoBDHandler) ComplianceReport(c *gin.Context) {
	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date: " + c.Query("from")})
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date: " + c.Query("to")})
		return
	}
	to = to.Add(24*time.Hour - time.Nanosecond)

	report, err := h.reportSvc.GenerateReport(c.Request.Context(), c.Param("companyId"), from, to)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *GoBDHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsSvc.Get(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *GoBDHandler) UpdateSettings(c *gin.Context) {
	var req SettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	settings, err := h.settingsSvc.Update(c.Request.Context(), c.Param("companyId"), domain.Settings{
		AutoLockOnSend:           req.AutoLockOnSend,
		AutoLockOnExport:         req.AutoLockOnExport,
		AllowStornoAfterLock:     req.AllowStornoAfterLock,
		AllowUnlock:              req.AllowUnlock,
		RequireApprovalForUnlock: req.RequireApprovalForUnlock,
		NotifyOnAutoLock:         req.NotifyOnAutoLock,
		NotifyOnOverdue:          req.NotifyOnOverdue,
	}, actorID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
