package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/changefeed"
	"github.com/example/room-timetable/internal/config"
	httptransport "github.com/example/room-timetable/internal/http"
	"github.com/example/room-timetable/internal/logging"
	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/persistence/memory"
	"github.com/example/room-timetable/internal/persistence/sqlstore"
	"github.com/example/room-timetable/internal/scheduler"
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		bootstrap.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("timetable server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, health, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if cfg.SeedFile != "" {
		rooms, err := loadSeedRooms(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := seedRooms(ctx, storage, rooms); err != nil {
			return err
		}
		logger.Info("rooms seeded", "file", cfg.SeedFile, "count", len(rooms))
	}

	loc := cfg.Location()
	service, err := application.NewTimetableService(storage, application.TimetableServiceConfig{
		Location:        loc,
		RefreshSchedule: cfg.RefreshSchedule,
		RefreshTimeout:  cfg.RefreshTimeout,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer service.Close()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:    httptransport.NewSessionHandler(service, logger),
		Rooms:       httptransport.NewRoomHandler(service, logger),
		Display:     httptransport.NewDisplayHandler(service, logger),
		Health:      health,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	// No WriteTimeout: display streams stay open. They end with the base context.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("timetable API listening", "addr", server.Addr, "driver", cfg.DBDriver, "timezone", loc.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore builds the configured adapter. For Postgres a listener relays writes made by
// other processes into the store's change hub until ctx ends.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, httptransport.HealthCheck, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memory.Open(), nil, nil
	case config.DriverSQLite:
		store, err := sqlstore.Open(ctx, sqlstore.DefaultSQLiteConfig(cfg.DBDSN))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Ping, nil
	case config.DriverPostgres:
		store, err := sqlstore.Open(ctx, sqlstore.DefaultPostgresConfig(cfg.DBDSN))
		if err != nil {
			return nil, nil, err
		}
		listener, err := changefeed.NewPostgresListener(cfg.DBDSN, store.NotifyChannel(), store.Origin(), store.Hub(), logger)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		go func() {
			defer listener.Close()
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("change listener stopped", "error", err)
			}
		}()
		return store, store.Ping, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

type seedFile struct {
	Rooms []seedRoom `json:"rooms"`
}

type seedRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func loadSeedRooms(path string) ([]scheduler.Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}

	rooms := make([]scheduler.Room, 0, len(file.Rooms))
	seen := make(map[string]struct{}, len(file.Rooms))
	for i, entry := range file.Rooms {
		id, name := strings.TrimSpace(entry.ID), strings.TrimSpace(entry.Name)
		if id == "" || name == "" {
			return nil, fmt.Errorf("seed file %s: room %d needs id and name", path, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("seed file %s: duplicate room id %q", path, id)
		}
		seen[id] = struct{}{}
		rooms = append(rooms, scheduler.Room{ID: id, Name: name})
	}
	return rooms, nil
}

func seedRooms(ctx context.Context, repo persistence.RoomRepository, rooms []scheduler.Room) error {
	for _, room := range rooms {
		if err := repo.SaveRoom(ctx, room); err != nil {
			return fmt.Errorf("seed room %s: %w", room.ID, err)
		}
	}
	return nil
}
