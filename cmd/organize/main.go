// Command organize re-normalizes the stored analysis markdown of every
// persisted record and re-derives its structured form, keeping old records
// consistent with the current parser.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/digest"
	"github.com/maxwei/maildigest/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("No .env file loaded")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "emails.db"
	}

	db, err := store.Open(dbPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	records, err := db.AllForReprocessing()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load records")
	}
	if len(records) == 0 {
		logger.Info("No records to reorganize")
		return
	}

	updated := 0
	for _, rec := range records {
		if rec.Markdown == "" {
			logger.WithField("id", rec.ID).Warn("Empty analysis markdown, skipping")
			continue
		}
		cleaned := digest.Normalize(rec.Markdown)
		if err := db.UpdateAnalysis(rec.ID, cleaned, digest.Parse(cleaned).JSON()); err != nil {
			logger.WithError(err).WithField("id", rec.ID).Error("Failed to update record")
			continue
		}
		updated++
	}

	logger.WithFields(logrus.Fields{
		"total":   len(records),
		"updated": updated,
	}).Info("Database reorganization complete")
}
