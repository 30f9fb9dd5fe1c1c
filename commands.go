package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"

	"recipe-api/config"
	"recipe-api/store"
	"recipe-api/store/memory"
	"recipe-api/store/postgres"
	"recipe-api/webserver"

	log "github.com/sirupsen/logrus"
)

const (
	commandServe     = "serve"
	commandMigrate   = "migrate"
	commandCreateJWT = "create-jwt"
)

var errNoDatabase = errors.New("command requires DATABASE_DRIVER=postgres")

func run(cmd string, args []string, cfg *config.Config, out io.Writer) error {
	switch cmd {
	case commandServe:
		return StartServer(cfg)
	case commandMigrate:
		return Migrate(context.Background(), cfg.Settings.Database)
	case commandCreateJWT:
		return CreateJWT(cfg, args, out)
	default:
		return fmt.Errorf("unknown command %q, expected %s, %s or %s", cmd, commandServe, commandMigrate, commandCreateJWT)
	}
}

func StartServer(cfg *config.Config) error {
	repo, err := OpenRepository(context.Background(), cfg.Settings.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	ws, err := webserver.NewWebserver(cfg, repo, store.NewUserRegistration(repo))
	if err != nil {
		return err
	}
	defer func() {
		err := ws.Close()
		if err != nil {
			log.WithError(err).Error("Error closing webserver")
		}
	}()
	return ws.Start()
}

// OpenRepository creates the repository for the configured driver. Postgres
// databases are migrated before use.
func OpenRepository(ctx context.Context, db config.SettingsDatabase) (store.Repository, error) {
	switch db.Driver {
	case "memory", "":
		log.Warn("Using the in-memory repository, data is lost on restart")
		return memory.NewRepository(), nil
	case "postgres":
		pool, err := postgres.Connect(ctx, db.URL, db.MaxConns)
		if err != nil {
			return nil, err
		}
		err = postgres.RunMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("invalid database driver %q", db.Driver)
	}
}

func Migrate(ctx context.Context, db config.SettingsDatabase) error {
	if db.Driver != "postgres" {
		return errNoDatabase
	}
	pool, err := postgres.Connect(ctx, db.URL, db.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.RunMigrations(ctx, pool)
}

// CreateJWT prints a session token for a synthetic user, e.g. for manual api calls.
func CreateJWT(cfg *config.Config, args []string, out io.Writer) error {
	flags := flag.NewFlagSet(commandCreateJWT, flag.ContinueOnError)
	subject := flags.String("subject", "", "user id of the token, random if empty")
	algorithm := flags.String("algorithm", "", "HS256 or RS256, the configured algorithm if empty")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	token, err := createToken(cfg, *subject, *algorithm)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func createToken(cfg *config.Config, subject, algorithm string) (string, error) {
	codec := cfg.NewCodec()
	if algorithm != "" {
		var err error
		codec, err = cfg.NewCodecWithAlgorithm(algorithm)
		if err != nil {
			return "", err
		}
	}

	if subject == "" {
		subject = uuid.NewString()
	} else if _, err := uuid.Parse(subject); err != nil {
		return "", fmt.Errorf("subject %q is no uuid: %w", subject, err)
	}

	claims := codec.NewSessionClaims(subject, "toni.tester@example.com", "Toni", "Tester", nil)
	return codec.Mint(claims)
}
