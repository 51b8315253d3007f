package main

import (
	"context"
	"log/slog"

	"portalsync-backend/services/portals"
	"portalsync-backend/services/reminders"
)

func InitReminders(ctx context.Context, cfg Config, source *portals.Service) (*reminders.Service, error) {
	var notifier reminders.Notifier
	if cfg.SMTP.Host != "" {
		notifier = reminders.NewSMTPNotifier(cfg.SMTP)
	} else {
		slog.Warn("no smtp host configured, reminders go to the log")
		notifier = reminders.LogNotifier{}
	}

	scheduler := reminders.NewService(cfg.Scheduler, source, notifier)
	err := scheduler.Start(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
