package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/klarbuch/gobd/backend/internal/gobd/domain"
)

// Issue 合规问题条目：一组同严重程度的超期凭证
type Issue struct {
	Severity    domain.IssueSeverity `json:"severity"`
	Description string               `json:"description"`
	DocumentIDs []string             `json:"document_ids"`
	Resolution  string               `json:"resolution,omitempty"`
}

// ComplianceReport 派生的合规快照
// 永远可从 FinancialDocument + AuditEntry 状态重算，不作为权威数据持久化
type ComplianceReport struct {
	CompanyID   string                  `json:"company_id"`
	PeriodFrom  time.Time               `json:"period_from"`
	PeriodTo    time.Time               `json:"period_to"`
	GeneratedAt time.Time               `json:"generated_at"`
	Status      domain.ComplianceStatus `json:"status"`

	TotalDocuments    int `json:"total_documents"`
	LockedDocuments   int `json:"locked_documents"`
	UnlockedDocuments int `json:"unlocked_documents"`
	OverdueDocuments  int `json:"overdue_documents"`
	StornoDocuments   int `json:"storno_documents"`
	CreditNotes       int `json:"credit_notes"`

	Issues          []Issue  `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// ReportService 合规报告引擎，只读、无副作用
// 外部调度器可以每日触发，与在线锁定/解锁流量并发运行是安全的
type ReportService struct {
	documentRepo domain.DocumentRepository
	settingsRepo domain.SettingsRepository
	logger       *zap.Logger
}

func NewReportService(docRepo domain.DocumentRepository, settingsRepo domain.SettingsRepository, logger *zap.Logger) *ReportService {
	return &ReportService{
		documentRepo: docRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

// GenerateReport 汇总一个期间的锁定覆盖情况
// 空期间得到 compliant 的零值报告；正常运行不产生领域错误，存储故障原样上抛
func (s *ReportService) GenerateReport(ctx context.Context, companyID string, from, to time.Time) (*ComplianceReport, error) {
	docs, err := s.documentRepo.FindByPeriod(ctx, companyID, from, to, nil)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.Find(ctx, companyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = domain.DefaultSettings(companyID)
	} else if err != nil {
		return nil, err
	}

	now := time.Now()
	report := &ComplianceReport{
		CompanyID:   companyID,
		PeriodFrom:  from,
		PeriodTo:    to,
		GeneratedAt: now,
		Status:      domain.StatusCompliant,
	}

	// 按锁定状态切分；未锁定的再按 30 天宽限期切出超期组
	overdueBySeverity := map[domain.IssueSeverity][]string{}
	for _, doc := range docs {
		report.TotalDocuments++
		if doc.StornoDocumentID != nil {
			report.StornoDocuments++
		}
		if doc.Type == domain.TypeCreditNote {
			report.CreditNotes++
		}
		if doc.IsLocked {
			report.LockedDocuments++
			continue
		}
		report.UnlockedDocuments++

		age := now.Sub(doc.CreatedAt)
		if age <= time.Duration(domain.OverdueGraceDays)*24*time.Hour {
			continue
		}
		report.OverdueDocuments++
		sev := severityForAge(int(age.Hours() / 24))
		overdueBySeverity[sev] = append(overdueBySeverity[sev], doc.ID)
	}

	// 状态分级：有超期即 non_compliant；有未锁定但未超期即 warning
	switch {
	case report.OverdueDocuments > 0:
		report.Status = domain.StatusNonCompliant
	case report.UnlockedDocuments > 0:
		report.Status = domain.StatusWarning
	}

	// 每个严重程度组一条 Issue
	for _, sev := range []domain.IssueSeverity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		ids, ok := overdueBySeverity[sev]
		if !ok {
			continue
		}
		report.Issues = append(report.Issues, Issue{
			Severity:    sev,
			Description: fmt.Sprintf("%d Belege sind länger als %d Tage nicht festgeschrieben", len(ids), domain.OverdueGraceDays),
			DocumentIDs: ids,
			Resolution:  "Belege prüfen und festschreiben oder per Storno korrigieren",
		})
	}

	report.Recommendations = recommendations(settings, report)

	s.logger.Debug("compliance report generated",
		zap.String("company_id", companyID),
		zap.String("status", string(report.Status)),
		zap.Int("total", report.TotalDocuments),
		zap.Int("overdue", report.OverdueDocuments),
	)

	return report, nil
}

// severityForAge 按凭证年龄 (天) 分级
// 宽限期 30 天，之后 <35 low, <45 medium, <60 high, >=60 critical
func severityForAge(ageDays int) domain.IssueSeverity {
	switch {
	case ageDays < 35:
		return domain.SeverityLow
	case ageDays < 45:
		return domain.SeverityMedium
	case ageDays < 60:
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}

// recommendations 根据当前策略缺口给出文字建议
func recommendations(settings *domain.Settings, report *ComplianceReport) []string {
	var recs []string
	if !settings.AutoLockOnSend {
		recs = append(recs, "Automatische Festschreibung beim Versand aktivieren (autoLockOnSend)")
	}
	if !settings.AutoLockOnExport {
		recs = append(recs, "Automatische Festschreibung beim Export aktivieren (autoLockOnExport)")
	}
	if report.OverdueDocuments > 0 {
		recs = append(recs, "Überfällige Belege zeitnah festschreiben, z.B. per Periodenabschluss")
	}
	if report.UnlockedDocuments > 0 && report.OverdueDocuments == 0 {
		recs = append(recs, "Offene Belege vor Ablauf der 30-Tage-Frist festschreiben")
	}
	return recs
}
