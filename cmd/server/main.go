// Command server starts the multilingual content-processing HTTP service:
// loads configuration, dials the tabular store, vector store, and cache,
// builds the LLM client and language detector, and serves the HTTP API
// until a termination signal triggers a graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doujins-org/polyglotkit/config"
	"github.com/doujins-org/polyglotkit/httpapi"
	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/lang"
	"github.com/doujins-org/polyglotkit/llm"
	"github.com/doujins-org/polyglotkit/store/artifact"
	"github.com/doujins-org/polyglotkit/store/cache"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/store/vector"
)

const (
	appName    = "polyglotkit"
	appVersion = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := scylla.New(cfg.Scylla)
	if err != nil {
		return fmt.Errorf("connect scylla: %w", err)
	}
	defer sess.Close()

	vecClient, err := vector.New(cfg.Qdrant)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer vecClient.Close()

	cacheClient := cache.New(cfg.Redis)
	defer cacheClient.Close()

	llmClient, err := llm.NewClient(cfg.AI)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	log.Printf("server: loading language models")
	detector := lang.NewDetector()

	app := &httpapi.App{
		Info:     httpapi.AppInfo{Name: appName, Version: appVersion},
		Scylla:   sess,
		Store:    artifact.New(sess),
		LLM:      llmClient,
		Vector:   vecClient,
		Cache:    cacheClient,
		Detector: detector,
		CollectionFor: func(gid ids.ID) string {
			return cfg.Qdrant.Collection + "_" + gid.String()
		},
	}

	router := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", srv.Addr)
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
			if err != nil {
				errCh <- fmt.Errorf("load server cert: %w", err)
				return
			}
			srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sig:
		log.Printf("server: shutting down")
		timeout := time.Duration(cfg.Server.GracefulShutdown) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}
	return nil
}
