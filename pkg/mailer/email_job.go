package mailer

import (
	"strings"

	"github.com/oksasatya/account-service/internal/domain/entity"
	mailtpl "github.com/oksasatya/account-service/pkg/mailer/templates"
)

// EmailJob is one rendered notification ready for a Sender.
type EmailJob struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// TemplateFor maps an event type to its template name ("account.updated" -> "account_updated").
func TemplateFor(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "_")
}

// BuildJob renders the notification for ev. ok is false when there is nothing
// to send: the account has no email, or no template exists for the event.
func BuildJob(ev entity.AccountEvent, brand mailtpl.Brand) (job EmailJob, ok bool, err error) {
	to := strings.TrimSpace(ev.Email)
	name := TemplateFor(ev.Type)
	if to == "" || !mailtpl.Exists(name) {
		return EmailJob{}, false, nil
	}

	data := mailtpl.NewEmailData(brand, ev.Username, ev.DisplayName, to,
		mailtpl.WithTime(ev.OccurredAt),
		mailtpl.WithChanges(ev.Changes),
	)
	subject, text, html, err := mailtpl.Render(name, data)
	if err != nil {
		return EmailJob{}, false, err
	}
	return EmailJob{To: to, Subject: subject, Text: text, HTML: html}, true, nil
}
