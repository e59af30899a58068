package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/xuri/excelize/v2"
)

const maxExportRows = 10000

var quoteExportHeaders = []string{
	"Quote Number", "Status", "Buyer", "User Type", "Company", "Items",
	"Estimated Total", "Final Total", "Currency", "Pricing Visible",
	"Submitted At", "Approved At", "Expires At", "Order ID", "Created At",
}

var auditExportHeaders = []string{
	"Quote ID", "Seq", "Action", "Old Status", "New Status", "Old Total", "New Total",
	"Actor", "Admin Name", "Admin Role", "Notes", "Created At",
}

// ExportService builds the admin workbook with the quote register and the audit trail.
type ExportService struct {
	quoteRepo *repository.QuoteRepository
	auditRepo *repository.AuditLogRepository
}

func NewExportService(quoteRepo *repository.QuoteRepository, auditRepo *repository.AuditLogRepository) *ExportService {
	return &ExportService{quoteRepo: quoteRepo, auditRepo: auditRepo}
}

// ExportQuotes writes quotes matching filters, and the audit rows since the given time,
// into a new workbook. The caller must close the returned file.
func (s *ExportService) ExportQuotes(ctx context.Context, actor Actor, filters map[string]string, since time.Time) (*excelize.File, string, error) {
	if !actor.IsAdmin {
		return nil, "", &AuthorizationError{Action: "export", Reason: "only admins can export quotes"}
	}

	quotes, _, err := s.quoteRepo.FindAll(ctx, 1, maxExportRows, filters)
	if err != nil {
		return nil, "", persistenceErr("list quotes", err)
	}
	entries, err := s.auditRepo.FindSince(ctx, since, maxExportRows)
	if err != nil {
		return nil, "", persistenceErr("list audit log", err)
	}

	f := excelize.NewFile()
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	const quoteSheet = "Quotes"
	f.SetSheetName("Sheet1", quoteSheet)
	writeHeader(f, quoteSheet, quoteExportHeaders, headerStyle)
	for i, q := range quotes {
		writeRow(f, quoteSheet, i+2, quoteRow(&q))
	}

	const auditSheet = "Audit Log"
	if _, err := f.NewSheet(auditSheet); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("create audit sheet: %w", err)
	}
	writeHeader(f, auditSheet, auditExportHeaders, headerStyle)
	for i, e := range entries {
		writeRow(f, auditSheet, i+2, auditRow(&e))
	}

	f.SetColWidth(quoteSheet, "A", "O", 16)
	f.SetColWidth(auditSheet, "A", "L", 16)

	filename := fmt.Sprintf("quotes_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, style)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

func quoteRow(q *entity.Quote) []interface{} {
	return []interface{}{
		q.QuoteNumber,
		string(q.Status),
		q.ClerkUserID,
		q.UserType,
		q.CompanyName,
		len(q.Items),
		q.EstimatedTotal,
		floatOrEmpty(q.FinalTotal),
		q.Currency,
		q.PricingVisible,
		timeOrEmpty(q.SubmittedAt),
		timeOrEmpty(q.ApprovedAt),
		timeOrEmpty(q.ExpiresAt),
		stringOrEmpty(q.OrderID),
		q.CreatedAt.Format(time.RFC3339),
	}
}

func auditRow(e *entity.QuoteAuditLog) []interface{} {
	return []interface{}{
		e.QuoteID,
		e.Seq,
		e.ActionType,
		e.OldStatus,
		e.NewStatus,
		floatOrEmpty(e.OldTotal),
		floatOrEmpty(e.NewTotal),
		e.ActorID,
		stringOrEmpty(e.AdminName),
		stringOrEmpty(e.AdminRole),
		e.Notes,
		e.CreatedAt.Format(time.RFC3339),
	}
}

func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
