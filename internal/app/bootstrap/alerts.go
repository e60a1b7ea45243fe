package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/notify"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// BuildEmailSender picks the operator alert transport. Anything that cannot
// be configured degrades to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "ses":
		if cfg.SESFromEmail != "" {
			sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
			if sender != nil {
				return sender
			}
		}
		logger.Warn("ses selected but SES_FROM_EMAIL is empty; alerts will be logged only")
	case "sendgrid", "":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid not configured; alerts will be logged only")
	default:
		logger.Warn("unknown email provider; alerts will be logged only", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildAlertService returns the operator notifier used both as the outbox
// delivery handler and, without Postgres, as a direct emitter.
func BuildAlertService(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	return notify.NewService(BuildEmailSender(cfg, awsCfg, logger), cfg.OperatorEmails, logger)
}

// BuildEmitter returns the event sink for the conversation pipeline. With
// Postgres, events go through the outbox and the returned Deliverer hands
// them to alerts; without it, alerts receive events directly and the
// Deliverer is nil.
func BuildEmitter(cfg *appconfig.Config, pool *pgxpool.Pool, alerts *notify.Service, logger *logging.Logger) (events.Emitter, *events.Deliverer) {
	if logger == nil {
		logger = logging.Default()
	}
	emitters := events.MultiEmitter{events.NewLogEmitter(logger)}
	if pool == nil {
		if alerts != nil {
			emitters = append(emitters, alerts)
		}
		return emitters, nil
	}
	store := events.NewOutboxStore(pool)
	emitters = append(emitters, events.NewOutboxEmitter(store, logger))
	if alerts == nil {
		return emitters, nil
	}
	deliverer := events.NewDeliverer(store, alerts, logger).WithInterval(cfg.OutboxPollInterval)
	return emitters, deliverer
}
