package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/skyqueue/internal/api"
	"github.com/maheshrc27/skyqueue/internal/api/handlers"
	job "github.com/maheshrc27/skyqueue/internal/jobs"
	"github.com/maheshrc27/skyqueue/internal/queue"
	"github.com/robfig/cron"
	"github.com/urfave/cli"
)

func serve(c *cli.Context) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx, cfg, ring, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := api.NewApp(*cfg, api.Handlers{
		Auth:     handlers.NewAuthHandler(*cfg, rt.auth),
		Post:     handlers.NewPostHandler(rt.posts, rt.queue),
		Queue:    handlers.NewQueueHandler(rt.queue),
		Settings: handlers.NewSettingsHandler(rt.settings),
		Logs:     handlers.NewLogsHandler(rt.ring),
	})

	var worker *asynq.Server
	if rt.asynq != nil {
		// tasks left by a previous run carry handles nobody tracks any more
		if n, err := rt.asynq.DisarmAll(ctx); err != nil {
			slog.Warn("could not drop stale tasks", "error", err)
		} else if n > 0 {
			slog.Info("dropped stale tasks", "count", n)
		}

		worker = asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
			Concurrency: 1,
			Queues:      map[string]int{queue.AsynqQueueName: 1},
		})
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeFirePost, rt.queue.HandleFirePostTask)

		log.Println("Starting the Asynq server...")
		if err := worker.Start(mux); err != nil {
			return err
		}
	}

	armed, err := rt.queue.Reconcile(ctx)
	if err != nil {
		return err
	}
	slog.Info("scheduler started", "backend", cfg.AlarmBackend, "armed", armed)

	// cron jobs
	sessionJob := job.NewSessionRefreshJob(rt.bsky)
	reconcileJob := job.NewReconcileJob(rt.queue)

	cr := cron.New()
	cr.AddFunc("@every 00h30m00s", sessionJob.RefreshSession)
	cr.AddFunc("@every 00h01m00s", reconcileJob.Reconcile)
	cr.Start()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, cr, worker)
	return nil
}

func gracefulShutdown(app *fiber.App, cr *cron.Cron, worker *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	cr.Stop()
	if worker != nil {
		worker.Shutdown()
	}

	log.Println("Server shutdown complete.")
}
