package store

// Schema contains the SQL schema for persisted email records. The
// received_date column is the raw Date header string; together with subject
// and from_email it forms the dedup key, compared by exact string equality.
const Schema = `
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subject TEXT,
    from_name TEXT,
    from_email TEXT,
    received_date TEXT,
    raw_email_body TEXT,
    analysis_markdown TEXT,
    analysis_json TEXT,
    mailbox TEXT,
    is_starred INTEGER DEFAULT 0,
    is_read INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_dedup ON emails(subject, from_email, received_date);
CREATE INDEX IF NOT EXISTS idx_emails_mailbox ON emails(mailbox);
CREATE INDEX IF NOT EXISTS idx_emails_received_date ON emails(received_date);
`
