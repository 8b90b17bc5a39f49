package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/analysis"
	"github.com/maxwei/maildigest/internal/config"
	"github.com/maxwei/maildigest/internal/mail"
	"github.com/maxwei/maildigest/internal/pipeline"
	"github.com/maxwei/maildigest/internal/store"
)

var listMailboxes = flag.Bool("mailboxes", false, "List mailbox folders (raw and decoded names) and exit")

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	mailClient := mail.NewClient(cfg, logger)

	if *listMailboxes {
		if err := mailClient.Connect(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to IMAP server")
		}
		defer mailClient.Logout()
		dirs, err := mailClient.ListMailboxes()
		if err != nil {
			logger.WithError(err).Fatal("Failed to list mailboxes")
		}
		for raw, decoded := range dirs {
			fmt.Printf("%s\t%s\n", raw, decoded)
		}
		return
	}

	templates, err := analysis.LoadTemplates(cfg.PromptsDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load templates")
	}
	analyzer := analysis.NewClient(cfg, templates, logger)

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	p := pipeline.New(mailClient, analyzer, db, cfg, logger)
	if err := p.Run(context.Background()); err != nil {
		logger.WithError(err).Error("Ingestion run failed")
		db.Close()
		os.Exit(1)
	}
	logger.Info("Ingestion run complete")
}
