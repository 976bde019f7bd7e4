package imap

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"conciliar/internal"
	"conciliar/internal/config"
	"conciliar/internal/connectors"
)

// Connector fetches purchase-report mail from the back-office IMAP account.
// The report query is translated into server-side SEARCH criteria (UNSEEN,
// SINCE, SUBJECT) so the client never downloads the whole mailbox.
type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

func (c *Connector) FetchReports(query connectors.ReportQuery) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(query.Mailbox, false); err != nil {
		return nil, fmt.Errorf("select %s: %w", query.Mailbox, err)
	}

	ids, err := client.Search(searchCriteria(query))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Newest messages win when the mailbox holds more than the cap.
	if query.Max > 0 && len(ids) > query.Max {
		ids = ids[len(ids)-query.Max:]
	}

	messages, err := c.readMessages(client, ids)
	if err != nil {
		return nil, err
	}
	if c.markSeen {
		if err := c.flagSeen(client, ids); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("login %s: %w", c.user, err)
	}
	return client, nil
}

func searchCriteria(query connectors.ReportQuery) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{Header: textproto.MIMEHeader{}}
	if query.UnseenOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if !query.Since.IsZero() {
		criteria.Since = query.Since
	}
	if s := strings.TrimSpace(query.SubjectContains); s != "" {
		criteria.Header.Add("Subject", s)
	}
	return criteria
}

func (c *Connector) readMessages(client *imapclient.Client, ids []uint32) ([]internal.FetchedMailMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	ch := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() { done <- client.Fetch(seqset, items, ch) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for msg := range ch {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetchedMessage(msg, raw))
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

func toFetchedMessage(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	messageID := ""
	subject := ""
	from := ""
	if msg.Envelope != nil {
		messageID = msg.Envelope.MessageId
		subject = msg.Envelope.Subject
		from = senderAddress(msg.Envelope.From)
	}
	if messageID == "" {
		messageID = fmt.Sprintf("imap-uid-%d", msg.Uid)
	}

	received := time.Now().UTC().Format(time.RFC3339)
	if !msg.InternalDate.IsZero() {
		received = msg.InternalDate.UTC().Format(time.RFC3339)
	}

	return internal.FetchedMailMessage{
		MessageID:  messageID,
		Subject:    subject,
		From:       from,
		ReceivedAt: received,
		Raw:        raw,
	}
}

// senderAddress renders the first From address; sender-to-client routing
// only ever looks at the address, not the display name.
func senderAddress(addrs []*imap.Address) string {
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			return fmt.Sprintf("%s <%s>", a.PersonalName, email)
		}
		return email
	}
	return ""
}

func (c *Connector) flagSeen(client *imapclient.Client, ids []uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return client.Store(seqset, item, []interface{}{imap.SeenFlag}, nil)
}
