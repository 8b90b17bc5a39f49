package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/digest"
)

// Record is one persisted analyzed email. AnalysisJSON is a cache derived
// from AnalysisMarkdown by the digest parser; the two are always written
// together.
type Record struct {
	ID               int64  `json:"id"`
	Subject          string `json:"subject"`
	FromName         string `json:"from_name"`
	FromEmail        string `json:"from_email"`
	ReceivedDate     string `json:"received_date"`
	RawBody          string `json:"raw_email_body"`
	AnalysisMarkdown string `json:"analysis_markdown"`
	AnalysisJSON     string `json:"analysis_json"`
	Mailbox          string `json:"mailbox"`
	Starred          bool   `json:"is_starred"`
	Read             bool   `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
}

// Analysis pairs a record id with its stored analysis markdown, for
// reprocessing passes.
type Analysis struct {
	ID       int64
	Markdown string
}

var fromAddressRe = regexp.MustCompile(`(.*)<(.+)>`)

// ParseFromAddress splits a "Name <addr>" display string into its name and
// address parts. A string without angle brackets is treated as a bare
// address.
func ParseFromAddress(from string) (name, email string) {
	if from == "" {
		return "", ""
	}
	if m := fromAddressRe.FindStringSubmatch(from); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"`), strings.TrimSpace(m[2])
	}
	return "", from
}

// Exists reports whether a record with the exact dedup key
// (subject, from_email, received_date) is already stored.
func (s *Store) Exists(subject, fromEmail, receivedDate string) (bool, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM emails WHERE subject = ? AND from_email = ? AND received_date = ?`,
		subject, fromEmail, receivedDate,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for existing email: %w", err)
	}
	return true, nil
}

// Save inserts a new record and returns its assigned id.
func (s *Store) Save(rec *Record) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO emails (subject, from_name, from_email, received_date, raw_email_body, analysis_markdown, analysis_json, mailbox)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Subject, rec.FromName, rec.FromEmail, rec.ReceivedDate,
		rec.RawBody, rec.AnalysisMarkdown, rec.AnalysisJSON, rec.Mailbox,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save email: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted id: %w", err)
	}
	rec.ID = id
	s.logger.WithField("subject", rec.Subject).Info("Saved email record")
	return id, nil
}

// GetByID retrieves a single record.
func (s *Store) GetByID(id int64) (*Record, error) {
	var rec Record
	var starred, read int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, subject, from_name, from_email, received_date, raw_email_body,
		       analysis_markdown, analysis_json, mailbox, is_starred, is_read, created_at
		FROM emails WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.Subject, &rec.FromName, &rec.FromEmail, &rec.ReceivedDate,
		&rec.RawBody, &rec.AnalysisMarkdown, &rec.AnalysisJSON, &rec.Mailbox,
		&starred, &read, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("email not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	rec.Starred = starred != 0
	rec.Read = read != 0
	rec.CreatedAt = parseTimestamp(createdAt)
	return &rec, nil
}

// List returns records, newest received first, optionally filtered by
// mailbox label.
func (s *Store) List(mailbox string) ([]*Record, error) {
	query := `
		SELECT id, subject, from_name, from_email, received_date, raw_email_body,
		       analysis_markdown, analysis_json, mailbox, is_starred, is_read, created_at
		FROM emails`
	var args []interface{}
	if mailbox != "" {
		query += ` WHERE mailbox = ?`
		args = append(args, mailbox)
	}
	query += ` ORDER BY received_date DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var starred, read int
		var createdAt string
		if err := rows.Scan(
			&rec.ID, &rec.Subject, &rec.FromName, &rec.FromEmail, &rec.ReceivedDate,
			&rec.RawBody, &rec.AnalysisMarkdown, &rec.AnalysisJSON, &rec.Mailbox,
			&starred, &read, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		rec.Starred = starred != 0
		rec.Read = read != 0
		rec.CreatedAt = parseTimestamp(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AllForReprocessing returns every record's id and analysis markdown.
func (s *Store) AllForReprocessing() ([]Analysis, error) {
	rows, err := s.db.Query(`SELECT id, analysis_markdown FROM emails`)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var all []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(&a.ID, &a.Markdown); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		all = append(all, a)
	}
	return all, rows.Err()
}

// UpdateAnalysis rewrites a record's analysis markdown and derived structure
// in one statement.
func (s *Store) UpdateAnalysis(id int64, markdown, analysisJSON string) error {
	if _, err := s.db.Exec(
		`UPDATE emails SET analysis_markdown = ?, analysis_json = ? WHERE id = ?`,
		markdown, analysisJSON, id,
	); err != nil {
		return fmt.Errorf("failed to update analysis for email %d: %w", id, err)
	}
	return nil
}

// UpdateStatus updates the starred and/or read flags. Nil pointers leave the
// corresponding flag untouched.
func (s *Store) UpdateStatus(id int64, starred, read *bool) error {
	var updates []string
	var args []interface{}
	if starred != nil {
		updates = append(updates, "is_starred = ?")
		args = append(args, boolToInt(*starred))
	}
	if read != nil {
		updates = append(updates, "is_read = ?")
		args = append(args, boolToInt(*read))
	}
	if len(updates) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE emails SET %s WHERE id = ?", strings.Join(updates, ", "))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update status for email %d: %w", id, err)
	}
	return nil
}

// UpdateUrgency sets the urgency rating of a record, rewriting the inline
// markdown field and the derived structure together so neither can drift
// from the other. Returns the updated record.
func (s *Store) UpdateUrgency(id int64, value string) (*Record, error) {
	rec, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	newMarkdown := digest.ReplaceUrgency(rec.AnalysisMarkdown, value)
	d := digest.Parse(newMarkdown)
	d.SetUrgency(value)

	if err := s.UpdateAnalysis(id, newMarkdown, d.JSON()); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"id": id, "urgency": value}).Info("Updated email urgency")
	return s.GetByID(id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTimestamp handles both formats SQLite hands back for the created_at
// default.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
