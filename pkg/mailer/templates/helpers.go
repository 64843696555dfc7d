package templates

import (
	"strings"
	"time"
)

// Brand carries the sender-side fields shared by every email.
type Brand struct {
	AppName     string
	CompanyName string
	SupportURL  string
}

// Option pattern
type Option func(*EmailData)

func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04 MST")
	}
}

// WithChanges lists changed fields in a human form ("display_name" -> "display name").
func WithChanges(fields []string) Option {
	return func(d *EmailData) {
		d.Changes = make([]string, 0, len(fields))
		for _, f := range fields {
			d.Changes = append(d.Changes, strings.ReplaceAll(f, "_", " "))
		}
	}
}

// NewEmailData fills the common fields, then applies opts. Name falls back
// to the username when the account has no display name.
func NewEmailData(b Brand, username, displayName, email string, opts ...Option) EmailData {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = username
	}
	d := EmailData{
		Name:        name,
		Username:    username,
		Email:       email,
		AppName:     b.AppName,
		CompanyName: b.CompanyName,
		SupportURL:  b.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
