package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ticket-engine/internal/config"
	"github.com/noah-isme/ticket-engine/internal/events"
	"github.com/noah-isme/ticket-engine/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()

	if !cfg.UseRedis() {
		logger.Fatal().Msg("REDIS_URL is required by the worker")
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.TaskQueue: 1},
		Logger:      taskLogger{logger},
	})

	mux := asynq.NewServeMux()
	events.Consumer{
		Logger: logger,
		Handle: kitchenPrinter(logger),
	}.Register(mux, cfg.TaskTopics...)

	logger.Info().Strs("topics", cfg.TaskTopics).Str("queue", cfg.TaskQueue).Msg("worker starting")
	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

// kitchenPrinter renders submitted order batches and closed tickets to the log, standing in
// for a printer integration.
func kitchenPrinter(logger zerolog.Logger) func(context.Context, events.Event) error {
	return func(_ context.Context, ev events.Event) error {
		var payload map[string]any
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		switch ev.Topic {
		case events.TopicOrdersSubmitted:
			logger.Info().Int64("ticket_id", ev.TicketID).Interface("order_number", payload["orderNumber"]).Msg("print kitchen ticket")
		case events.TopicTicketClosed:
			logger.Info().Int64("ticket_id", ev.TicketID).Interface("total", payload["total"]).Msg("print receipt")
		}
		return nil
	}
}

// taskLogger routes asynq's internal logging through zerolog.
type taskLogger struct {
	l zerolog.Logger
}

func (t taskLogger) Debug(args ...any) { t.l.Debug().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Info(args ...any)  { t.l.Info().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Warn(args ...any)  { t.l.Warn().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Error(args ...any) { t.l.Error().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Fatal(args ...any) { t.l.Fatal().Msg(fmt.Sprint(args...)) }
