package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-advisor-auth/internal/config"
	"github.com/jrsteele09/go-advisor-auth/internal/migrate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %s\n", err)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().
		Level(logLevel(config.New().GetEnv()))

	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errActionFailed) {
			log.Error().Err(err).Msg("advisor-auth failed")
		}
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 && args[0] == "migrate" {
		dsn := c.GetDatabaseURL()
		if dsn == "" {
			return errors.New("DATABASE_URL is required to migrate")
		}
		if err := migrate.Up(ctx, dsn); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
		return nil
	}

	a, err := newApp(ctx, c, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		displayAppname(c.GetAppName())
		return a.shell(ctx, os.Stdin)
	}
	return a.execute(ctx, args)
}

func logLevel(env string) zerolog.Level {
	if env == "DEV" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
