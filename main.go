package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	api "maildigest/cmd/api"
	digestdomain "maildigest/internal/digest/domain"
	digestRepo "maildigest/internal/digest/repository"
	digestUsecase "maildigest/internal/digest/usecase"
	indexdomain "maildigest/internal/index/domain"
	indexRepo "maildigest/internal/index/repository"
	indexUsecase "maildigest/internal/index/usecase"
	messagedomain "maildigest/internal/message/domain"
	messageRepo "maildigest/internal/message/repository"
	syncengine "maildigest/internal/sync"
	"maildigest/pkg/ai"
	"maildigest/pkg/config"
	"maildigest/pkg/database"
	"maildigest/pkg/embed"
	"maildigest/pkg/mailbox"
	"maildigest/pkg/mailbox/gmail"
	"maildigest/pkg/mailbox/imapmail"
	"maildigest/pkg/transport"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database schemas
	err = db.AutoMigrate(
		&messagedomain.Message{},
		&messagedomain.SyncCursor{},
		&indexdomain.IndexEntry{},
		&indexdomain.IndexCursor{},
		&digestdomain.Subscriber{},
		&digestdomain.PendingDigest{},
	)
	if err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize repositories (dependency injection)
	messageStore := messageRepo.NewGormMessageStore(db)
	indexEntries := indexRepo.NewGormIndexEntryRepository(db)
	registry := digestRepo.NewGormSubscriberRegistry(db)
	pendingDigests := digestRepo.NewGormPendingDigestRepository(db)

	// Mailbox source
	source, err := newMailboxSource(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize mailbox source: %v", err)
	}

	// Sync engine wakes the index engine after each stored page
	notify := make(chan struct{}, 1)
	syncEngine := syncengine.NewEngine(messageStore, source, cfg.PollInterval, notify)

	// Embedder is optional; without a key the index runs lexical-only and
	// embeds lazily once a key is configured.
	var embedder embed.Embedder
	if cfg.GeminiAPIKey != "" {
		embedder, err = embed.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			logrus.Fatalf("Failed to initialize embedder: %v", err)
		}
	} else {
		logrus.Warn("GEMINI_API_KEY not configured, search runs lexical-only")
	}

	indexEngine := indexUsecase.NewEngine(messageStore, indexEntries, embedder, notify)
	indexEngine.SetVectorWeight(cfg.SearchVectorWeight)
	indexEngine.SetWorkerCount(cfg.IndexWorkers)
	indexEngine.SetReindexBatch(cfg.ReindexBatch)

	// Summarizer and digest delivery
	summarizer, err := ai.NewSummarizerService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize summarizer: %v", err)
	}

	sender, err := transport.NewSMTPSender(transport.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.SMTPFromEmail,
		FromName:  cfg.SMTPFromName,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize SMTP sender: %v", err)
	}

	scheduler := digestUsecase.NewScheduler(messageStore, registry, pendingDigests, summarizer, sender, cfg.DigestInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := syncEngine.Start(ctx); err != nil {
			logrus.Errorf("Sync engine exited: %v", err)
			stop()
		}
	}()
	go indexEngine.Start(ctx)
	go scheduler.Start(ctx)

	// HTTP API
	handler := api.NewHandler(messageStore, indexEngine, registry, pendingDigests, scheduler)
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		if err := handler.Start(":" + cfg.Port); err != nil {
			logrus.Errorf("Server exited: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server shutdown: %v", err)
	}
	syncEngine.Stop()
	indexEngine.Stop()
	scheduler.Stop()
}

func newMailboxSource(cfg *config.Config) (mailbox.Source, error) {
	backfillWindow := time.Duration(cfg.BackfillDays) * 24 * time.Hour

	switch cfg.MailProvider {
	case "imap":
		if cfg.IMAPHost == "" {
			return nil, fmt.Errorf("IMAP_HOST is required for the imap provider")
		}
		return imapmail.NewService(cfg.IMAPHost, cfg.IMAPPort, cfg.IMAPUsername, cfg.IMAPPassword, cfg.IMAPMailbox, backfillWindow), nil

	case "gmail":
		if cfg.GoogleClientID == "" || cfg.GmailRefreshToken == "" {
			return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GMAIL_REFRESH_TOKEN are required for the gmail provider")
		}
		onRefresh := func(token *oauth2.Token) error {
			logrus.Info("[Sync] gmail access token refreshed")
			return nil
		}
		return gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailAccessToken, cfg.GmailRefreshToken, backfillWindow, onRefresh), nil

	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.MailProvider)
	}
}
