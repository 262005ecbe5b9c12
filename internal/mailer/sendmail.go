package mailer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// SendmailDispatcher hands envelopes to a local MTA binary in sendmail -t
// mode. The MTA owns queuing and wire-level retries; a non-zero exit here
// means the message was never accepted and the caller may retry the
// identical envelope.
type SendmailDispatcher struct {
	Path string // MTA binary, e.g. /usr/sbin/sendmail
}

// NewSendmailDispatcher builds a dispatcher for the given MTA path.
func NewSendmailDispatcher(path string) (*SendmailDispatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("mailer: sendmail path is required")
	}
	return &SendmailDispatcher{Path: path}, nil
}

// Send pipes the RFC 5322 message to the MTA.
func (d *SendmailDispatcher) Send(ctx context.Context, env Envelope) error {
	if env.Recipient == "" {
		return fmt.Errorf("mailer: envelope has no recipient")
	}

	cmd := exec.CommandContext(ctx, d.Path, "-t", "-f", env.From)
	cmd.Stdin = strings.NewReader(FormatMessage(env))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("mailer: sendmail: %s: %w", detail, err)
		}
		return fmt.Errorf("mailer: sendmail: %w", err)
	}
	return nil
}

// FormatMessage renders the envelope as an RFC 5322 message. Custom
// headers are emitted in sorted order so the bytes are stable for a given
// envelope.
func FormatMessage(env Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", env.From)
	fmt.Fprintf(&b, "To: %s\r\n", env.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", env.Subject)

	names := make([]string, 0, len(env.Headers))
	for name := range env.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, env.Headers[name])
	}

	b.WriteString("\r\n")
	b.WriteString(env.Body)
	if !strings.HasSuffix(env.Body, "\n") {
		b.WriteString("\r\n")
	}
	return b.String()
}
