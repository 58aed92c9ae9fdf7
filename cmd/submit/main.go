package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/resper1965/ncrisis-sub000/internal/bootstrap"
	"github.com/resper1965/ncrisis-sub000/internal/config"
	"github.com/resper1965/ncrisis-sub000/internal/observability/logging"
)

func main() {
	var (
		archivePath = flag.String("file", "", "path of the zip archive to submit")
		mimeType    = flag.String("mime", "application/zip", "mime type reported for the archive")
		cancelID    = flag.String("cancel", "", "session id to cancel instead of submitting")
	)
	flag.Parse()

	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("pii-submit", cfg.LogLevel))

	if *archivePath == "" && *cancelID == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if *cancelID != "" {
		if err := app.ArchiveUC.CancelSession(ctx, *cancelID); err != nil {
			log.Fatalf("cancel session: %v", err)
		}
		fmt.Printf("session %s cancelled\n", *cancelID)
		return
	}

	f, err := os.Open(*archivePath)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatalf("stat archive: %v", err)
	}

	sub, err := app.SubmitUC.Submit(ctx, filepath.Base(*archivePath), *mimeType, info.Size(), f)
	if err != nil {
		log.Fatalf("submit archive: %v", err)
	}
	fmt.Printf("session %s queued (%d bytes)\n", sub.SessionID, sub.SizeBytes)
}
