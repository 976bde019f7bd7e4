package connectors

import (
	"time"

	"conciliar/internal/config"
	"conciliar/internal/storage"
)

// FetchService pulls purchase-report mail into the local store. The search
// is scoped by the mail settings (mailbox, subject filter, lookback window)
// and messages already known to the mail table are not re-stored, so a
// mailbox that keeps old reports around does not get re-ingested every cycle.
type FetchService struct {
	db        *storage.DB
	cfg       config.Config
	connector MailConnector
	store     *MailStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, cfg config.Config, connector MailConnector) *FetchService {
	return &FetchService{
		db:        db,
		cfg:       cfg,
		connector: connector,
		store:     NewMailStoreService(db, cfg.RawMailDir),
	}
}

func (s *FetchService) reportQuery() ReportQuery {
	query := ReportQuery{
		Mailbox:         s.cfg.MailLabel,
		Max:             s.cfg.MailFetchMax,
		SubjectContains: s.cfg.MailSubjectFilter,
		UnseenOnly:      true,
	}
	if s.cfg.MailSinceDays > 0 {
		query.Since = time.Now().AddDate(0, 0, -s.cfg.MailSinceDays)
	}
	return query
}

func (s *FetchService) FetchReports() (FetchResult, error) {
	messages, err := s.connector.FetchReports(s.reportQuery())
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		existing, err := s.db.GetMailByMessageID(msg.MessageID)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Known++
			continue
		}
		if _, err := s.store.Store(msg); err != nil {
			return result, err
		}
		result.Stored++
	}

	return result, nil
}
