package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/romanzh1/mood-diary/internal/config"
	"github.com/romanzh1/mood-diary/internal/handler"
	"github.com/romanzh1/mood-diary/internal/handler/webapp"
	"github.com/romanzh1/mood-diary/internal/service"
	"github.com/romanzh1/mood-diary/internal/service/reminder"
	"github.com/romanzh1/mood-diary/pkg/webhook"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("create bot API: %w", err)
	}
	zap.S().Info("authorized on telegram", zap.String("bot", api.Self.UserName))

	// The recurring sender is bound to the telegram handler, which needs the service first.
	var tgHandler *handler.TelegramHandler
	sender := reminder.SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		return tgHandler.SendReminder(ctx, chatID, text)
	})

	var registrar service.ReminderRegistrar
	var recurring *reminder.Recurring
	var opts []service.Option

	switch cfg.ReminderMode {
	case config.ReminderModeCron:
		recurring = reminder.NewRecurring(sender, "", cfg.Location)
		registrar = recurring
	default:
		client := webhook.NewClient(cfg.ReminderWebhookURL, webhook.Variant(cfg.ReminderWebhookKind), cfg.ReminderWebhookToken)
		if client.Configured() {
			registrar = reminder.NewScheduler(client,
				reminder.WithHorizon(cfg.ReminderHorizonDays),
				reminder.WithDelay(cfg.ReminderDispatchDelay),
				reminder.WithClock(func() time.Time { return time.Now().In(cfg.Location) }),
			)
			perDispatch := cfg.ReminderDispatchDelay + webhook.DefaultTimeout
			opts = append(opts, service.WithReminderTimeout(time.Duration(cfg.ReminderHorizonDays)*perDispatch))
		} else {
			zap.S().Warn("REMINDER_WEBHOOK_URL is empty, reminders are disabled")
		}
	}

	svc := service.NewService(repo, registrar, cfg.Location, opts...)
	tgHandler = handler.NewTelegramHandler(api, svc, cfg.WebAppURL)

	if recurring != nil {
		if _, err := svc.StartupRecurring(ctx); err != nil {
			zap.S().Error("restore recurring reminders", zap.Error(err))
		}
		recurring.Start()
		defer recurring.Stop()
	}

	app := webapp.NewApp(webapp.NewHandler(svc, cfg.TelegramToken, cfg.InitDataMaxAge), "")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tgHandler.Start(gctx)
		return nil
	})

	g.Go(func() error {
		zap.S().Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen (addr: %s): %w", cfg.HTTPAddr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zap.S().Warn("shutdown http server", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	zap.S().Info("stopped")
	return nil
}
