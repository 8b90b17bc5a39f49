// Package pipeline orchestrates one ingestion run: fetch mail, skip
// already-seen messages, analyze the rest, and persist the results. Messages
// are processed sequentially with a fixed pacing delay between them, which
// keeps the analysis service under its rate limits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/analysis"
	"github.com/maxwei/maildigest/internal/config"
	"github.com/maxwei/maildigest/internal/digest"
	"github.com/maxwei/maildigest/internal/mail"
	"github.com/maxwei/maildigest/internal/store"
	"github.com/maxwei/maildigest/pkg/types"
)

// Connector fetches mail from the remote mailbox.
type Connector interface {
	Connect() error
	FetchMessages(mailbox string, criteria *imap.SearchCriteria) ([]*types.Email, error)
	Logout()
}

// Analyzer turns a composed request into analysis markdown.
type Analyzer interface {
	Analyze(ctx context.Context, msgs []types.Message, templateName string, includeImages bool) (string, error)
}

// Recorder persists analyzed messages.
type Recorder interface {
	Exists(subject, fromEmail, receivedDate string) (bool, error)
	Save(rec *store.Record) (int64, error)
}

const (
	defaultTemplate     = "all_in_one"
	defaultMessageDelay = 5 * time.Second
)

// Pipeline runs the ingestion pass.
type Pipeline struct {
	Mail     Connector
	Analyzer Analyzer
	Store    Recorder
	Logger   *logrus.Logger

	Mailbox      string
	DaysBack     int
	Template     string
	Policy       analysis.Policy
	MessageDelay time.Duration

	// Sleep and Now are injectable so retry and pacing behavior can be
	// tested without real time.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// New builds a pipeline with production defaults from the configuration.
func New(conn Connector, analyzer Analyzer, recorder Recorder, cfg *config.Config, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		Mail:         conn,
		Analyzer:     analyzer,
		Store:        recorder,
		Logger:       logger,
		Mailbox:      cfg.Mailbox,
		DaysBack:     cfg.FetchDaysAgo,
		Template:     defaultTemplate,
		Policy:       analysis.DefaultPolicy(),
		MessageDelay: defaultMessageDelay,
		Sleep:        time.Sleep,
		Now:          time.Now,
	}
}

// Run executes one ingestion pass. A connector-level failure aborts the run;
// a single message's failure is logged and the loop continues.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Mail.Connect(); err != nil {
		return fmt.Errorf("failed to connect to mailbox: %w", err)
	}
	defer p.Mail.Logout()

	since := p.Now().AddDate(0, 0, -p.DaysBack)
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	p.Logger.WithFields(logrus.Fields{
		"mailbox": p.Mailbox,
		"since":   since.Format("02-Jan-2006"),
	}).Info("Fetching messages")

	emails, err := p.Mail.FetchMessages(p.Mailbox, criteria)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(emails) == 0 {
		p.Logger.Info("No new messages")
		return nil
	}
	p.Logger.WithField("count", len(emails)).Info("Processing messages")

	for _, email := range emails {
		processed, err := p.processMessage(ctx, email)
		if err != nil {
			// A missing template is a configuration bug that would fail for
			// every message; stop instead of burning retries on each one.
			if errors.Is(err, analysis.ErrTemplateNotFound) {
				return fmt.Errorf("analysis misconfigured: %w", err)
			}
			p.Logger.WithError(err).WithField("subject", email.Subject).Error("Failed to process message")
		}
		if processed {
			p.Sleep(p.MessageDelay)
		}
	}
	return nil
}

// processMessage handles a single fetched message. It reports whether the
// message was analyzed and saved; only those messages pace the loop, so
// skipped and abandoned messages cost no delay.
func (p *Pipeline) processMessage(ctx context.Context, email *types.Email) (bool, error) {
	_, fromEmail := store.ParseFromAddress(email.From)

	exists, err := p.Store.Exists(email.Subject, fromEmail, email.Date)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing record: %w", err)
	}
	if exists {
		p.Logger.WithField("subject", email.Subject).Info("Message already stored, skipping")
		return false, nil
	}

	p.Logger.WithField("subject", email.Subject).Info("Processing new message")
	msgs := mail.Compose(email)

	markdown, err := p.analyzeWithRetry(ctx, msgs, email.Subject)
	if err != nil {
		return false, err
	}

	fromName, fromAddr := store.ParseFromAddress(email.From)
	rec := &store.Record{
		Subject:          email.Subject,
		FromName:         fromName,
		FromEmail:        fromAddr,
		ReceivedDate:     email.Date,
		RawBody:          email.Body,
		AnalysisMarkdown: markdown,
		AnalysisJSON:     digest.Parse(markdown).JSON(),
		Mailbox:          p.Mailbox,
	}
	if _, err := p.Store.Save(rec); err != nil {
		return false, fmt.Errorf("failed to save record: %w", err)
	}
	return true, nil
}

// analyzeWithRetry applies the retry policy: attempts with images until the
// policy gives up, then one final attempt without images before abandoning
// the message.
func (p *Pipeline) analyzeWithRetry(ctx context.Context, msgs []types.Message, subject string) (string, error) {
	for attempt := 1; ; attempt++ {
		markdown, err := p.Analyzer.Analyze(ctx, msgs, p.Template, true)
		if err == nil {
			p.Logger.WithField("subject", subject).Info("Analysis with images succeeded")
			return markdown, nil
		}
		if errors.Is(err, analysis.ErrTemplateNotFound) {
			return "", err
		}

		retry, delay := p.Policy.Next(attempt, err)
		if !retry {
			p.Logger.WithError(err).WithField("subject", subject).Warn("Analysis with images failed, retrying without images")
			break
		}
		p.Logger.WithError(err).WithFields(logrus.Fields{
			"subject": subject,
			"attempt": attempt,
		}).Warn("Analysis failed, will retry")
		p.Sleep(delay)
	}

	markdown, err := p.Analyzer.Analyze(ctx, msgs, p.Template, false)
	if err != nil {
		return "", fmt.Errorf("analysis without images also failed: %w", err)
	}
	p.Logger.WithField("subject", subject).Info("Analysis without images succeeded")
	return markdown, nil
}
