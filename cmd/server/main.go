package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Coderoom/internal/adapters/directory"
	router "github.com/dkeye/Coderoom/internal/adapters/http"
	"github.com/dkeye/Coderoom/internal/adapters/store"
	"github.com/dkeye/Coderoom/internal/app"
	"github.com/dkeye/Coderoom/internal/app/orch"
	"github.com/dkeye/Coderoom/internal/config"
	"github.com/dkeye/Coderoom/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	var dir core.Directory
	if cfg.DirectoryURL != "" {
		dir = directory.NewHTTPClient(cfg.DirectoryURL)
		log.Info().Str("url", cfg.DirectoryURL).Msg("using remote directory")
	} else {
		dir = directory.NewOpen()
		log.Info().Msg("no directory configured, running open")
	}

	// Fresh rooms are seeded with whatever the store remembers about
	// them: the last persisted document and the recent chat tail.
	seed := func(room core.RoomService) {
		id := room.Room().ID
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer seedCancel()
		if doc, ok, err := db.LoadDocument(seedCtx, id); err != nil {
			log.Error().Err(err).Str("room", string(id)).Msg("load document")
		} else if ok {
			room.SetDocument(doc)
		}
		if msgs, err := db.RecentMessages(seedCtx, id, cfg.ChatHistory); err != nil {
			log.Error().Err(err).Str("room", string(id)).Msg("load messages")
		} else {
			room.SeedHistory(msgs)
		}
	}

	manager := app.NewRoomManager(cfg.ChatHistory, seed)
	docs := app.NewDocSync(db, cfg.DocQuietPeriod)

	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     manager,
		Relay:     app.Relay{},
		Docs:      docs,
		Directory: dir,
		Messages:  db,
		Policy:    app.SimplePolicy{},
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Coderoom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Pending debounced writes carry the newest document state; flush
	// them before the store closes.
	for _, info := range manager.List() {
		if room, ok := manager.Get(info.ID); ok {
			docs.Flush(room)
		}
	}
	log.Info().Msg("Server exited gracefully")
}
