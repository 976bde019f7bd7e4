package listener

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"conciliar/internal/config"
	"conciliar/internal/connectors"
	imapconnector "conciliar/internal/connectors/imap"
	"conciliar/internal/pipeline"
	"conciliar/internal/recon"
	"conciliar/internal/storage"
)

// Service polls the back-office mailbox for purchase reports, imports them,
// and optionally runs the unattended reconcile-and-export cycle.
type Service struct {
	db  *storage.DB
	cfg config.Config
	log *logrus.Logger
}

func NewService(db *storage.DB, cfg config.Config, log *logrus.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.log.WithError(err).Error("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.ListenerIntervalSec) * time.Second):
		}
	}
}

// RunOnce executes a single fetch/import/reconcile cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) error {
	connector, err := imapconnector.NewConnector(s.cfg)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg, connector)
	fetchResult, err := fetchService.FetchReports()
	if err != nil {
		return err
	}

	importer := pipeline.NewMailImportService(s.db, s.cfg, s.log)
	processed, skipped, err := importer.ProcessPending(s.cfg.MailFetchMax)
	if err != nil {
		return err
	}

	if s.cfg.ListenerAutoReconcile && processed > 0 {
		if err := s.reconcile(); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"fetched":   fetchResult.Fetched,
		"stored":    fetchResult.Stored,
		"known":     fetchResult.Known,
		"processed": processed,
		"skipped":   skipped,
	}).Info("listener cycle done")
	return nil
}

func (s *Service) reconcile() error {
	reconciler := recon.NewReconciler(s.db, s.db, s.db, s.db, s.cfg, s.log)
	analysis, commit, err := reconciler.CommitAutomatic()
	if err != nil {
		if errors.Is(err, recon.ErrInsufficientData) {
			s.log.Warn("reconcile skipped: purchase or invoice corpus is empty")
			return nil
		}
		return err
	}

	s.log.WithFields(logrus.Fields{
		"documentsLinked": commit.DocumentsLinked,
		"linesLinked":     commit.LinesLinked,
		"errors":          commit.Errors,
	}).Info("auto reconcile done")

	if s.cfg.ListenerAutoExport {
		filename := fmt.Sprintf("reconcile_%s.xlsx", time.Now().Format("20060102_150405"))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportReportToXLSX(analysis, outputPath); err != nil {
			return err
		}
	}
	return nil
}
