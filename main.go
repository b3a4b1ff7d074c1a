package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/fabfab/pdf-rag/api"
	"github.com/fabfab/pdf-rag/bootstrap"
	"github.com/fabfab/pdf-rag/chat"
	"github.com/fabfab/pdf-rag/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = ingestCmd(ctx, cfg, logger, os.Args[2:])
	case "chat":
		err = chatCmd(ctx, cfg, logger, os.Args[2:])
	case "clear":
		err = clearCmd(ctx, cfg, logger, os.Args[2:])
	case "serve":
		err = serveCmd(ctx, cfg, logger, os.Args[2:])
	default:
		logger.Error().Str("command", os.Args[1]).Msg("unknown command")
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func openApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*bootstrap.App, error) {
	setupCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	return bootstrap.New(setupCtx, cfg, logger)
}

func ingestCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	pdfPath := flags.String("pdf", cfg.PDFPath, "path to the PDF to ingest")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse ingest flags: %w", err)
	}

	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info().
		Str("pdf", *pdfPath).
		Str("provider", app.Provider.Name()).
		Str("store", cfg.VectorStore).
		Msg("ingesting")

	opCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	report, err := app.Ingestor.Ingest(opCtx, *pdfPath, cfg.CollectionName)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println("Ingestion complete!")
	fmt.Printf("PDF: %s\n", report.Source)
	fmt.Printf("Pages: %d\n", report.Pages)
	fmt.Printf("Chunks: %d\n", report.Chunks)
	fmt.Printf("Collection: %s\n", report.Collection)
	return nil
}

func chatCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "ask a single question and exit")
	k := flags.Int("k", cfg.TopK, "number of context chunks to retrieve")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse chat flags: %w", err)
	}

	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if strings.TrimSpace(*question) != "" {
		opCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()

		answer, err := app.Chat.Answer(opCtx, *question, *k)
		if err != nil {
			return fmt.Errorf("chat failed: %w", err)
		}
		fmt.Println(answer)
		return nil
	}

	loop := chat.NewLoop(app.Chat, app.Prompt, os.Stdin, os.Stdout, logger)
	loop.K = *k
	loop.Timeout = cfg.RequestTimeout
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func clearCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse clear flags: %w", err)
	}

	if !*confirmed {
		fmt.Printf("This will permanently delete the collection %q. Continue? [y/N]: ", cfg.CollectionName)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read confirmation: %w", err)
			}
			logger.Info().Msg("clear aborted")
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Info().Msg("clear aborted")
			return nil
		}
	}

	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	opCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	return app.Clear(opCtx)
}

func serveCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "listen address")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}

	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := api.New(cfg, api.Services{
		Ingestor: app.Ingestor,
		Searcher: app.Retriever,
		Chat:     app.Chat,
		Clearer:  app,
	}, logger.With().Str("component", "api").Logger())

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           http.TimeoutHandler(server, cfg.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func printUsage() {
	fmt.Println("Usage: pdf-rag <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Ingest the PDF at PDF_PATH into the configured collection (use --pdf to override)")
	fmt.Println("  chat     Ask questions about the ingested document (use --question for a single question)")
	fmt.Println("  clear    Delete the configured collection")
	fmt.Println("  serve    Serve the HTTP API on LISTEN_ADDR")
}
