package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"time"

	server "cardquest/server"
	"cardquest/server/internal/ledger"
	servernet "cardquest/server/internal/net"
	"cardquest/server/logging"
	loggingSinks "cardquest/server/logging/sinks"
)

type Config struct {
	Logger *log.Logger
}

// Run wires the process together from environment configuration and serves
// until the context is cancelled. With no MONGODB_URI the ledger falls back
// to the in-memory store.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	router := logging.NewRouter(nil, logging.DefaultConfig(), loggingSinks.NewConsoleSink(os.Stdout))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := router.Close(closeCtx); err != nil {
			logger.Printf("failed to close logging router: %v", err)
		}
	}()

	store, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Printf("failed to close ledger store: %v", err)
		}
	}()

	svc := ledger.NewService(store, ledger.ServiceConfig{Logger: logger, Publisher: router})
	hub := server.NewHubWithConfig(server.HubConfig{Logger: logger, Publisher: router})

	handler := servernet.NewHTTPHandler(hub, svc, servernet.HTTPHandlerConfig{
		ClientDir: os.Getenv("CLIENT_DIR"),
		Logger:    logger,
	})

	addr := os.Getenv("CARDQUEST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &nethttp.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

func openStore(ctx context.Context, logger *log.Logger) (ledger.Store, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		logger.Printf("MONGODB_URI unset, using in-memory ledger store")
		return ledger.NewMemoryStore(), nil
	}

	database := os.Getenv("MONGODB_DB")
	if database == "" {
		database = "cardquest"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := ledger.NewMongoStore(connectCtx, uri, database)
	if err != nil {
		return nil, fmt.Errorf("open mongo store: %w", err)
	}
	logger.Printf("connected to mongodb database %s", database)
	return store, nil
}
