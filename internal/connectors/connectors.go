package connectors

import (
	"time"

	"conciliar/internal"
)

// ReportQuery narrows a mailbox fetch to purchase-report mail. The zero
// value of Since means no lower bound; SubjectContains is matched
// server-side when the connector supports it.
type ReportQuery struct {
	Mailbox         string
	Max             int
	Since           time.Time
	SubjectContains string
	UnseenOnly      bool
}

type MailConnector interface {
	FetchReports(query ReportQuery) ([]internal.FetchedMailMessage, error)
}
