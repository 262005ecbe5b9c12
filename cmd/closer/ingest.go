package main

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/loadline/closer/internal/routing"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest one inbound email (RFC 5322) from a file or stdin",
		Long:  "Parses an inbound email, attributes it to a negotiation, and drives the state machine. Intended as the LDA delivery hook.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, configPath, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}

func runIngest(cmd *cobra.Command, configPath string, args []string) error {
	var src io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		src = f
	}

	email, err := parseEmail(src)
	if err != nil {
		return err
	}

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	machine, err := buildMachine(cfg, gormDB, out)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	ingestor, err := routing.NewIngestor(gormDB, machine, notifier, out)
	if err != nil {
		return err
	}
	return ingestor.Ingest(context.Background(), email)
}

// parseEmail reads one RFC 5322 message into the routing shape. Only the
// plain text body is kept; attachment extraction happens upstream in the
// delivery agent, which passes saved paths via X-Closer-Attachment.
func parseEmail(src io.Reader) (routing.InboundEmail, error) {
	msg, err := mail.ReadMessage(src)
	if err != nil {
		return routing.InboundEmail{}, fmt.Errorf("parse email: %w", err)
	}

	body, err := io.ReadAll(io.LimitReader(msg.Body, 1<<20))
	if err != nil {
		return routing.InboundEmail{}, fmt.Errorf("read body: %w", err)
	}

	headers := map[string]string{}
	for name := range msg.Header {
		headers[name] = msg.Header.Get(name)
	}

	email := routing.InboundEmail{
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), " \t"),
		From:      msg.Header.Get("From"),
		To:        msg.Header.Get("To"),
		Subject:   msg.Header.Get("Subject"),
		Body:      string(body),
		Headers:   headers,
	}
	for _, path := range msg.Header["X-Closer-Attachment"] {
		email.Attachments = append(email.Attachments, routing.Attachment{
			Filename: path,
			Path:     path,
		})
	}
	return email, nil
}
