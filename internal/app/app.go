package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/identity"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
	"taskboard/internal/server"
	"taskboard/internal/store"
	"taskboard/internal/store/mongo"
	"taskboard/internal/store/sqlite"
)

// App holds the server-side components built from a Config.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Store    store.Store
	Identity *identity.Service
	Engine   engine.Engine
	Log      zerolog.Logger
}

// Open opens the identity database, migrates it, connects the task store
// selected by cfg.Store.Driver and wires the identity service and engine.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	conn, err := db.Open(db.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Int("schema_version", version).Str("path", db.Path(cfg.Store.Path)).Msg("database ready")

	var s store.Store
	switch cfg.Store.Driver {
	case config.DriverMongo:
		s, err = mongo.Open(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			conn.Close()
			return nil, err
		}
	default:
		s = sqlite.New(conn)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			s.Close()
			conn.Close()
			return nil, err
		}
		log.Warn().Msg("auth.jwt_secret not set; using an ephemeral secret, issued tokens will not survive a restart")
	}
	idSvc, err := identity.NewService(repo.Repo{DB: conn}, identity.Config{
		Secret:            secret,
		Issuer:            cfg.Auth.Issuer,
		TokenTTL:          cfg.Auth.TokenTTL,
		RefreshTTL:        cfg.Auth.RefreshTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, nil, log)
	if err != nil {
		s.Close()
		conn.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		DB:       conn,
		Store:    s,
		Identity: idSvc,
		Engine:   engine.New(s, log),
		Log:      log,
	}, nil
}

// Handler builds the HTTP handler for the task and identity APIs.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:   a.Engine,
		Identity: a.Identity,
		Verifier: a.Identity,
		BasePath: a.Config.Server.BasePath,
		Logger:   a.Log,
	})
}

// Close releases the store and the database.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.DB.Close())
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
