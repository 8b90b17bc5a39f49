package mail

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/config"
	"github.com/maxwei/maildigest/internal/mutf7"
	"github.com/maxwei/maildigest/pkg/types"
)

// ErrNotConnected is returned when an operation requires an authenticated
// session and Connect has not succeeded yet.
var ErrNotConnected = errors.New("not connected to mail server")

// Client manages the session lifecycle to the remote mailbox.
type Client struct {
	cfg       *config.Config
	logger    *logrus.Logger
	client    *client.Client
	connected bool
}

// NewClient creates a new mailbox client (does not connect immediately)
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect establishes a TLS connection to the IMAP server and authenticates.
func (c *Client) Connect() error {
	if c.connected && c.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.IMAPServer, c.cfg.IMAPPort)
	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.cfg.IMAPServer,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := cl.Login(c.cfg.IMAPUsername, c.cfg.IMAPPassword); err != nil {
		cl.Logout() //nolint:errcheck
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	c.client = cl
	c.connected = true
	c.logger.WithField("server", addr).Info("Connected to IMAP server")
	return nil
}

// ListMailboxes enumerates the server's folders and returns a mapping from
// the raw wire-encoded mailbox name to its decoded human-readable name.
// Decoding a single entry is best-effort and never aborts the listing.
func (c *Client) ListMailboxes() (map[string]string, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	dirs := make(map[string]string)
	for m := range mailboxes {
		// The IMAP library transcodes names it recognizes; anything still
		// carrying modified UTF-7 shifts is decoded here, and the wire form
		// is rebuilt for names that arrived already decoded.
		decoded := mutf7.Decode(m.Name)
		raw := m.Name
		if decoded == m.Name {
			raw = mutf7.Encode(m.Name)
		}
		dirs[raw] = decoded
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	c.logger.WithField("count", len(dirs)).Info("Listed mailboxes")
	return dirs, nil
}

// FetchMessages selects the mailbox, searches with the given criteria, and
// fetches each matching message by sequence number. A single message's parse
// failure is logged and that message skipped; it does not abort the batch.
func (c *Client) FetchMessages(mailbox string, criteria *imap.SearchCriteria) ([]*types.Email, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}

	if _, err := c.client.Select(mailbox, false); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %q: %w", mailbox, err)
	}

	seqNums, err := c.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.client.Fetch(seqSet, []imap.FetchItem{imap.FetchRFC822}, messages)
	}()

	var emails []*types.Email
	for msg := range messages {
		email, err := c.parseMessage(msg)
		if err != nil {
			c.logger.WithError(err).WithField("seq", msg.SeqNum).Warn("Failed to parse message, skipping")
			continue
		}
		emails = append(emails, email)
		c.logger.WithFields(logrus.Fields{
			"subject": email.Subject,
			"from":    email.From,
		}).Info("Fetched message")
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return emails, nil
}

// parseMessage turns a raw fetched message into our Email type. Subject and
// From are decoded through the charset fallback chain; Date stays the raw
// header string because the dedup key compares it verbatim.
func (c *Client) parseMessage(msg *imap.Message) (*types.Email, error) {
	raw := readBody(msg)
	if len(raw) == 0 {
		return nil, fmt.Errorf("message has no body content")
	}

	env, err := parser.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	content := FromEnvelope(env)
	return &types.Email{
		From:    DecodeHeader(env.Root.Header.Get("From")),
		To:      DecodeHeader(env.Root.Header.Get("To")),
		Subject: DecodeHeader(env.Root.Header.Get("Subject")),
		Date:    env.Root.Header.Get("Date"),
		Body:    content.Body,
		Text:    content.Text,
		Images:  content.Images,
		Raw:     raw,
	}, nil
}

// Logout ends the session. Safe to call if never connected or already
// disconnected.
func (c *Client) Logout() {
	if c.client == nil {
		return
	}
	if err := c.client.Logout(); err != nil {
		c.logger.WithError(err).Warn("Failed to log out from IMAP server")
	}
	c.client = nil
	c.connected = false
}

// readBody reads the full message content from whichever body section the
// server populated.
func readBody(msg *imap.Message) []byte {
	for _, literal := range msg.Body {
		if literal == nil {
			continue
		}
		if b, err := io.ReadAll(literal); err == nil && len(b) > 0 {
			return b
		}
	}
	return nil
}
