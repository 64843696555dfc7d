// Package worker consumes account lifecycle events and sends notification emails.
package worker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/pkg/mailer"
	mailtpl "github.com/oksasatya/account-service/pkg/mailer/templates"
)

// NotifyWorker turns AccountEvent deliveries into emails.
// A nil Sender runs in dry-run mode: jobs are rendered and logged, never sent.
type NotifyWorker struct {
	Sender      mailer.Sender
	Brand       mailtpl.Brand
	Logger      *logrus.Logger
	SendTimeout time.Duration
}

func NewNotifyWorker(sender mailer.Sender, brand mailtpl.Brand, logger *logrus.Logger) *NotifyWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotifyWorker{Sender: sender, Brand: brand, Logger: logger, SendTimeout: 15 * time.Second}
}

// Run handles deliveries until msgs is closed or ctx is cancelled.
// Messages are acknowledged one at a time.
func (w *NotifyWorker) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *NotifyWorker) handle(ctx context.Context, msg amqp.Delivery) {
	var ev entity.AccountEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		w.Logger.WithError(err).Warn("bad message")
		_ = msg.Nack(false, false)
		return
	}
	log := w.Logger.WithFields(logrus.Fields{"event": ev.Type, "account_id": ev.AccountID})

	job, ok, err := mailer.BuildJob(ev, w.Brand)
	if err != nil {
		log.WithError(err).Error("render failed")
		_ = msg.Nack(false, false)
		return
	}
	if !ok {
		log.Debug("nothing to send")
		_ = msg.Ack(false)
		return
	}
	if w.Sender == nil {
		log.WithField("subject", job.Subject).Info("mail sending disabled; skipping")
		_ = msg.Ack(false)
		return
	}

	c, cancel := context.WithTimeout(ctx, w.SendTimeout)
	defer cancel()
	if err := w.Sender.Send(c, job.To, job.Subject, job.Text, job.HTML); err != nil {
		log.WithError(err).Warn("send failed; requeueing")
		_ = msg.Nack(false, true)
		return
	}
	log.Info("notification sent")
	_ = msg.Ack(false)
}
