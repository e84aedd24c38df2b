// Package main is the entry point for the field-survey backend.
//
// main stays minimal: read configuration, build the logger, hand both to
// internal/server. Every other concern lives in an internal package.
//
// USAGE:
//
//	server                                   # serve on $PORT
//	server -create-user -email a@b.c -password secret1 -name "Field Agent"
//
// Configuration comes from the environment; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/field-survey/internal/config"
	"github.com/sakif/field-survey/internal/server"
)

func main() {
	createUser := flag.Bool("create-user", false, "provision an account and exit")
	email := flag.String("email", "", "account email (with -create-user)")
	password := flag.String("password", "", "account password (with -create-user)")
	name := flag.String("name", "", "display name (with -create-user)")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// JSON in production keeps the lines machine-parseable; the level comes
	// from LOG_LEVEL.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *createUser {
		defer srv.Close()
		u, err := srv.CreateUser(context.Background(), *email, *password, *name)
		if err != nil {
			logger.Error("failed to create user", slog.String("error", err.Error()))
			srv.Close()
			os.Exit(1)
		}
		logger.Info("user created", slog.String("id", u.ID), slog.String("email", u.Email))
		return
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
