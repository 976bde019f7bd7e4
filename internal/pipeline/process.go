package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"conciliar/internal"
	"conciliar/internal/config"
	"conciliar/internal/storage"
)

// MailImportService turns fetched purchase-report mail into purchase lines.
// The sender address decides which client the report belongs to, via the
// MAIL_SENDER_CLIENTS mapping.
type MailImportService struct {
	db  *storage.DB
	cfg config.Config
	log *logrus.Logger
}

func NewMailImportService(db *storage.DB, cfg config.Config, log *logrus.Logger) *MailImportService {
	return &MailImportService{db: db, cfg: cfg, log: log}
}

type MailProcessResult struct {
	MailID    int
	Workbooks int
	Imported  ImportResult
}

func (s *MailImportService) ProcessPending(limit int) (processed int, skipped int, err error) {
	pending, err := s.db.ListMailByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}

	for _, row := range pending {
		result, err := s.ProcessMail(row)
		if err != nil {
			return processed, skipped, err
		}
		if result.Workbooks == 0 {
			skipped++
			continue
		}
		processed++
	}
	return processed, skipped, nil
}

func (s *MailImportService) ProcessMail(row internal.MailRow) (MailProcessResult, error) {
	raw, err := os.ReadFile(row.RawRef)
	if err != nil {
		return MailProcessResult{}, err
	}

	taxID, ok := s.resolveSender(row.Sender)
	if !ok {
		_ = s.db.UpdateMailStatus(row.ID, "skipped")
		s.log.WithFields(logrus.Fields{"mail": row.ID, "sender": row.Sender}).Warn("no client mapping for sender")
		return MailProcessResult{MailID: row.ID}, nil
	}

	workbooks, _, err := ExtractWorkbookAttachments(raw)
	if err != nil {
		return MailProcessResult{}, err
	}
	if len(workbooks) == 0 {
		_ = s.db.UpdateMailStatus(row.ID, "skipped")
		return MailProcessResult{MailID: row.ID}, nil
	}

	importer := NewImportService(s.db)
	result := MailProcessResult{MailID: row.ID, Workbooks: len(workbooks)}
	for _, wb := range workbooks {
		imported, err := importer.ImportPurchases(wb.Content, taxID)
		if err != nil {
			return MailProcessResult{}, fmt.Errorf("import %s: %w", wb.FileName, err)
		}
		result.Imported.TotalRows += imported.TotalRows
		result.Imported.PurchasesCreated += imported.PurchasesCreated
		result.Imported.PurchasesUpdated += imported.PurchasesUpdated
		result.Imported.ReturnsCreated += imported.ReturnsCreated
		result.Imported.ReturnsUpdated += imported.ReturnsUpdated
		result.Imported.Skipped += imported.Skipped
	}

	if err := s.db.UpdateMailStatus(row.ID, "processed"); err != nil {
		return MailProcessResult{}, err
	}
	s.log.WithFields(logrus.Fields{
		"mail":      row.ID,
		"taxId":     taxID,
		"workbooks": result.Workbooks,
		"rows":      result.Imported.TotalRows,
	}).Info("purchase report imported")

	return result, nil
}

var reAddress = regexp.MustCompile(`<([^>]+)>`)

func (s *MailImportService) resolveSender(sender string) (string, bool) {
	address := strings.ToLower(strings.TrimSpace(sender))
	if m := reAddress.FindStringSubmatch(sender); len(m) > 1 {
		address = strings.ToLower(strings.TrimSpace(m[1]))
	}
	taxID, ok := s.cfg.MailSenderClients[address]
	return taxID, ok
}
