// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

// Package notify delivers password reset links to account holders.
// Two backends exist: a log-only deliverer for development and a
// Mailgun-backed one for real deployments. Both satisfy
// auth.ResetLinkDeliverer.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mailgun/mailgun-go/v5"
	"github.com/samber/oops"

	"github.com/studyshare/studyshare/internal/auth"
)

var (
	_ auth.ResetLinkDeliverer = (*LogDeliverer)(nil)
	_ auth.ResetLinkDeliverer = (*MailgunDeliverer)(nil)
)

const resetSubject = "Reset your StudyShare password"

// ResetLink appends the token to the configured base URL as the
// "token" query parameter.
func ResetLink(baseURL, token string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		// Fall back to naive concatenation for unparseable bases.
		return baseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResetBody renders the plain-text email body.
func ResetBody(link string) string {
	return fmt.Sprintf(
		"A password reset was requested for your StudyShare account.\n\n"+
			"Open the link below to choose a new password. The link expires soon\n"+
			"and can be ignored safely if you did not request it.\n\n%s\n",
		link)
}

// LogDeliverer writes the reset link to the log instead of sending
// mail. Development only: tokens in logs are credentials.
type LogDeliverer struct {
	logger       *slog.Logger
	resetBaseURL string
}

// NewLogDeliverer creates a log-backed deliverer.
func NewLogDeliverer(logger *slog.Logger, resetBaseURL string) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger, resetBaseURL: resetBaseURL}
}

// DeliverResetLink logs the composed link at info level.
func (d *LogDeliverer) DeliverResetLink(ctx context.Context, email, token string) error {
	d.logger.InfoContext(ctx, "password reset link issued",
		"email", email,
		"link", ResetLink(d.resetBaseURL, token))
	return nil
}

// MailgunDeliverer sends reset links through the Mailgun API.
type MailgunDeliverer struct {
	client       *mailgun.Client
	domain       string
	sender       string
	resetBaseURL string
}

// NewMailgunDeliverer creates a Mailgun-backed deliverer.
func NewMailgunDeliverer(domain, apiKey, sender, resetBaseURL string) *MailgunDeliverer {
	return &MailgunDeliverer{
		client:       mailgun.NewMailgun(apiKey),
		domain:       domain,
		sender:       sender,
		resetBaseURL: resetBaseURL,
	}
}

// DeliverResetLink sends the reset email to the given address.
func (d *MailgunDeliverer) DeliverResetLink(ctx context.Context, email, token string) error {
	body := ResetBody(ResetLink(d.resetBaseURL, token))
	msg := mailgun.NewMessage(d.domain, d.sender, resetSubject, body, email)

	if _, err := d.client.Send(ctx, msg); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("email", email).
			Wrap(err)
	}
	return nil
}
