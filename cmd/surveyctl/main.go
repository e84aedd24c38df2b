// Package main is surveyctl, the terminal front end of the field-survey client.
//
// Each subcommand stands in for one screen of the app, and the route guard
// decides whether that screen may open with the current session, exactly as it
// would on the device. The session is kept in a local SQLite file between runs.
//
// USAGE:
//
//	surveyctl login -email a@example.com -password secret1
//	surveyctl whoami
//	surveyctl list
//	surveyctl show <id>
//	surveyctl create -retailer "Rahim Store" -bdo BDO-7 -franchise FR-1 \
//	    -address "12 Market Road" -image1 front.jpg -image2 shelf.png \
//	    -lat 23.8103 -lon 90.4125
//	surveyctl delete <id>
//	surveyctl logout
//
// Configuration comes from the environment; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/field-survey/internal/config"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "login -email EMAIL -password PASSWORD", runLogin},
	{"logout", "logout", runLogout},
	{"whoami", "whoami", runWhoami},
	{"list", "list [-refresh]", runList},
	{"show", "show ID", runShow},
	{"create", "create -retailer -bdo -franchise -address -image1 -image2 [-lat -lon]", runCreate},
	{"delete", "delete ID", runDelete},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "surveyctl: unknown command %q\n", args[0])
		usage()
		return 2
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stdout, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return 1
	}
	defer a.Close()

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		var denied *guardError
		if !errors.As(err, &denied) {
			logger.Debug("command failed", slog.String("command", cmd.name), slog.String("error", err.Error()))
		}
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: surveyctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintln(os.Stderr, "  surveyctl "+c.usage)
	}
}
