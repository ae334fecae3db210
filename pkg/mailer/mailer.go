// Package mailer sends best-effort notification mail. Every send is
// fire-and-forget: failures are logged and never surface to the action
// that triggered them. With no SMTP host configured the mailer is a no-op.
package mailer

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type Mailer struct {
	host      string
	port      string
	user      string
	pass      string
	from      string
	publicURL string
	logger    *slog.Logger
}

func New(host, port, user, pass, from, publicURL string, logger *slog.Logger) *Mailer {
	return &Mailer{
		host:      host,
		port:      port,
		user:      user,
		pass:      pass,
		from:      from,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

// Enabled reports whether outbound mail is configured.
func (m *Mailer) Enabled() bool { return m.host != "" }

func (m *Mailer) send(to, subject, body string) {
	if !m.Enabled() || to == "" {
		return
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.from, to, subject, body)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		m.logger.Warn("notification mail not delivered", "to", to, "subject", subject, "error", err)
		return
	}
	m.logger.Info("notification mail sent", "to", to, "subject", subject)
}

// SessionInvitation mails participant 2 their unique join link.
func (m *Mailer) SessionInvitation(to, sessionID, token string) {
	link := fmt.Sprintf("%s/session/%s/%s", m.publicURL, sessionID, token)
	m.send(to, "You've been invited to a mediation session", fmt.Sprintf(
		"You've been invited to a mediation session.\n\n"+
			"Click the link below to join:\n%s\n\n"+
			"This session will help resolve your conflict with the assistance of AI.\n"+
			"Important: This link is unique to you and should not be shared with others.\n\n"+
			"If you did not request this mediation, please ignore this message.\n", link))
}

// ResponseReceived tells participant 1 the counter-party responded.
func (m *Mailer) ResponseReceived(to, sessionID string) {
	link := fmt.Sprintf("%s/session/%s", m.publicURL, sessionID)
	m.send(to, "Participant 2 has responded to your mediation request", fmt.Sprintf(
		"Participant 2 has responded to your mediation request.\n\n"+
			"You can now add additional context and help reach a resolution.\n\n"+
			"View session: %s\n", link))
}

// ContextAdded tells participant 2 that participant 1 added context.
func (m *Mailer) ContextAdded(to, sessionID string) {
	link := fmt.Sprintf("%s/session/%s", m.publicURL, sessionID)
	m.send(to, "Participant 1 has added context to your mediation", fmt.Sprintf(
		"Participant 1 has added context to your mediation.\n\n"+
			"You can now add your own context and help reach a resolution.\n\n"+
			"View session: %s\n", link))
}

// JudgmentReady tells a participant the final judgment is available.
func (m *Mailer) JudgmentReady(to, sessionID string) {
	link := fmt.Sprintf("%s/judgment/%s", m.publicURL, sessionID)
	m.send(to, "Your mediation judgment is ready", fmt.Sprintf(
		"The judgment for your mediation session is ready.\n\n"+
			"View judgment: %s\n", link))
}

// SessionRejected tells participant 1 the counter-party declined.
func (m *Mailer) SessionRejected(to, sessionID string) {
	m.send(to, "Your mediation request was declined", fmt.Sprintf(
		"Participant 2 has declined to take part in mediation session %s.\n"+
			"No further action will take place in this session.\n", sessionID))
}
