// Package email polls the applicant's inbox after a submission to catch the
// portal's confirmation mail. It is optional; attempts succeed or fail on
// page signals alone, and an inbox confirmation is reported as extra evidence.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/akashpal/jobwright/internal/config"
	"github.com/akashpal/jobwright/internal/logging"
)

// recentWindow bounds how many trailing inbox messages each poll scans.
const recentWindow = 10

var confirmationSubjects = []string{
	"application received",
	"application confirmation",
	"thank you for applying",
	"we received your application",
	"your application to",
	"application submitted",
}

// Confirmation describes a matched inbox message.
type Confirmation struct {
	Subject    string
	From       string
	ReceivedAt time.Time
}

// Monitor polls an IMAP inbox for application confirmation mail.
type Monitor struct {
	cfg    config.EmailConfig
	client *client.Client
}

// NewMonitor creates a Monitor from the email configuration.
func NewMonitor(cfg config.EmailConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

func (m *Monitor) connect() error {
	address := m.cfg.IMAPServer
	if !strings.Contains(address, ":") {
		address += ":993"
	}

	c, err := client.DialTLS(address, &tls.Config{
		ServerName: strings.Split(address, ":")[0],
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}
	if _, err := c.Select("INBOX", true); err != nil {
		c.Logout()
		return fmt.Errorf("failed to select INBOX: %w", err)
	}
	m.client = c
	return nil
}

// Close logs out of the IMAP session.
func (m *Monitor) Close() error {
	if m.client != nil {
		return m.client.Logout()
	}
	return nil
}

// WaitForConfirmation polls the inbox up to the configured number of times,
// looking for a confirmation mail received after since. It returns the first
// match, or nil when none arrives before the attempts run out.
func (m *Monitor) WaitForConfirmation(ctx context.Context, portalDomain string, since time.Time) (*Confirmation, error) {
	if m.client == nil {
		if err := m.connect(); err != nil {
			return nil, err
		}
	}

	logging.Info("Polling inbox for a confirmation from %s (%d attempts, every %s)",
		portalDomain, m.cfg.PollAttempts, m.cfg.PollInterval)

	for attempt := 0; attempt < m.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.cfg.PollInterval):
			}
		}

		conf, err := m.scanRecent(portalDomain, since)
		if err != nil {
			logging.Warn("Inbox check failed, reconnecting: %v", err)
			m.Close()
			m.client = nil
			if err := m.connect(); err != nil {
				return nil, err
			}
			continue
		}
		if conf != nil {
			logging.Info("Confirmation mail found: %q from %s", conf.Subject, conf.From)
			return conf, nil
		}
		logging.Debug("No confirmation yet (check %d/%d)", attempt+1, m.cfg.PollAttempts)
	}
	return nil, nil
}

// scanRecent fetches the trailing window of inbox messages and matches them
// against the confirmation subjects and the portal's domain.
func (m *Monitor) scanRecent(portalDomain string, since time.Time) (*Confirmation, error) {
	status, err := m.client.Status("INBOX", []imap.StatusItem{imap.StatusMessages})
	if err != nil {
		return nil, err
	}
	if status.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if status.Messages > recentWindow {
		from = status.Messages - recentWindow + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, status.Messages)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, recentWindow)
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, items, messages)
	}()

	var found *Confirmation
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		if msg.InternalDate.Before(since.Add(-time.Minute)) {
			continue
		}
		if conf := matchMessage(msg, section, portalDomain); conf != nil {
			found = conf
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return found, nil
}

func matchMessage(msg *imap.Message, section *imap.BodySectionName, portalDomain string) *Confirmation {
	subject := strings.ToLower(msg.Envelope.Subject)
	sender := senderAddress(msg.Envelope)

	subjectMatch := false
	for _, phrase := range confirmationSubjects {
		if strings.Contains(subject, phrase) {
			subjectMatch = true
			break
		}
	}

	// A sender on the portal's domain plus application wording in the body
	// also counts, for portals with unhelpful subject lines.
	if !subjectMatch {
		if portalDomain == "" || !strings.Contains(sender, rootDomain(portalDomain)) {
			return nil
		}
		body := messageBody(msg, section)
		if !strings.Contains(strings.ToLower(body), "application") {
			return nil
		}
	}

	return &Confirmation{
		Subject:    msg.Envelope.Subject,
		From:       sender,
		ReceivedAt: msg.InternalDate,
	}
}

func senderAddress(env *imap.Envelope) string {
	if len(env.From) == 0 {
		return ""
	}
	return strings.ToLower(env.From[0].MailboxName + "@" + env.From[0].HostName)
}

// rootDomain trims a leading host label so mail from careers.example.com
// matches a posting on jobs.example.com.
func rootDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

func messageBody(msg *imap.Message, section *imap.BodySectionName) string {
	r := msg.GetBody(section)
	if r == nil {
		return ""
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			if data, err := io.ReadAll(part.Body); err == nil {
				sb.Write(data)
			}
		}
		if sb.Len() > 64*1024 {
			break
		}
	}
	return sb.String()
}
