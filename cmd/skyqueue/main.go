package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/pkg/logger"
	"github.com/urfave/cli"
)

var version = "dev"

var (
	cfg  *config.Config
	ring *logger.Ring
)

func main() {
	app := cli.App{
		Name:      "skyqueue",
		HelpName:  "skyqueue",
		Usage:     "schedule Bluesky posts",
		Version:   version,
		UsageText: "skyqueue <command> [arguments...]",
		Before:    bootstrap,
		After: func(*cli.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		},
		Commands: []cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the scheduler",
				Action: serve,
			},
			{
				Name:   "login",
				Usage:  "verify and store a Bluesky app password",
				Action: login,
				Flags:  loginFlags,
			},
			{
				Name:    "schedule",
				Aliases: []string{"s"},
				Usage:   "queue a post for one or more times on a date",
				Action:  schedule,
				Flags:   scheduleFlags,
			},
			{
				Name:   "post",
				Usage:  "publish a post right away",
				Action: postNow,
				Flags:  postFlags,
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "show queued posts",
				Action:  list,
			},
			{
				Name:   "clear",
				Usage:  "drop every queued post",
				Action: clearQueue,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func bootstrap(*cli.Context) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg = config.LoadConfig()
	ring = logger.Setup(os.Stderr, cfg.LogLevel)

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     version,
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	return nil
}
