package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/bulksend/internal/config"
	"github.com/example/bulksend/internal/contacts"
	"github.com/example/bulksend/internal/dispatch"
	"github.com/example/bulksend/internal/logger"
	emailprovider "github.com/example/bulksend/internal/providers/email"
	"github.com/example/bulksend/internal/render"
	"github.com/example/bulksend/internal/sendlog"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Send a templated email to each contact over one SMTP session",
	RunE:  runEmail,
}

var emailFlags struct {
	to       string
	csvPath  string
	subject  string
	template string
	vars     []string

	host        string
	port        int
	username    string
	passwordEnv string
	fromAddress string
	fromName    string
	noTLS       bool

	out      string
	delay    time.Duration
	retries  int
	timeout  time.Duration
	dryRun   bool
	limit    int
	startRow int
}

func init() {
	f := emailCmd.Flags()
	f.StringVar(&emailFlags.to, "to", "", "send one message to this address instead of reading a CSV")
	f.StringVar(&emailFlags.csvPath, "csv", "", "contacts CSV file with a header row")
	f.StringVar(&emailFlags.subject, "subject", "", "subject template, inline text or a file path")
	f.StringVar(&emailFlags.template, "template", "", "HTML body template, inline text or a file path")
	f.StringArrayVar(&emailFlags.vars, "vars", nil, "template variable as key=value, repeatable (with --to)")

	f.StringVar(&emailFlags.host, "host", "", "SMTP host (overrides BULKSEND_SMTP_HOST)")
	f.IntVar(&emailFlags.port, "port", 0, "SMTP port (overrides BULKSEND_SMTP_PORT)")
	f.StringVar(&emailFlags.username, "username", "", "SMTP username (overrides BULKSEND_SMTP_USER)")
	f.StringVar(&emailFlags.passwordEnv, "password-env", "", "name of the environment variable holding the SMTP password")
	f.StringVar(&emailFlags.fromAddress, "from-address", "", "envelope sender address (overrides BULKSEND_SMTP_FROM)")
	f.StringVar(&emailFlags.fromName, "from-name", "", "display name for the From header")
	f.BoolVar(&emailFlags.noTLS, "no-tls", false, "skip STARTTLS even when the server offers it")

	f.StringVar(&emailFlags.out, "out", "send_log.csv", "per-attempt send log, appended to across runs")
	f.DurationVar(&emailFlags.delay, "delay", 200*time.Millisecond, "pause after each record")
	f.IntVar(&emailFlags.retries, "retries", 0, "extra delivery attempts per message")
	f.DurationVar(&emailFlags.timeout, "timeout", 10*time.Second, "dial timeout for the SMTP connection")
	f.BoolVar(&emailFlags.dryRun, "dry-run", false, "render and log every record without sending")
	f.IntVar(&emailFlags.limit, "limit", 0, "stop after this many records, 0 means all")
	f.IntVar(&emailFlags.startRow, "start-row", 1, "first data row to process, 1-based")

	rootCmd.AddCommand(emailCmd)
}

func runEmail(cmd *cobra.Command, args []string) error {
	if emailFlags.template == "" {
		return dispatch.WrapConfiguration(errors.New("--template is required"))
	}
	if emailFlags.to == "" && emailFlags.csvPath == "" {
		return dispatch.WrapConfiguration(errors.New("either --csv or --to is required"))
	}
	if emailFlags.to != "" && emailFlags.csvPath != "" {
		return dispatch.WrapConfiguration(errors.New("--csv and --to are mutually exclusive"))
	}

	cfg, err := config.Load()
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}

	smtpCfg := cfg.SMTP
	if emailFlags.host != "" {
		smtpCfg.Host = emailFlags.host
	}
	if emailFlags.port != 0 {
		smtpCfg.Port = emailFlags.port
	}
	if emailFlags.username != "" {
		smtpCfg.User = emailFlags.username
	}
	if emailFlags.passwordEnv != "" {
		pass, ok := os.LookupEnv(emailFlags.passwordEnv)
		if !ok {
			return dispatch.WrapConfiguration(fmt.Errorf("password variable %s is not set", emailFlags.passwordEnv))
		}
		smtpCfg.Pass = pass
	}
	if emailFlags.fromAddress != "" {
		smtpCfg.From = emailFlags.fromAddress
	}
	if emailFlags.fromName != "" {
		smtpCfg.FromName = emailFlags.fromName
	}
	if cmd.Flags().Changed("no-tls") {
		smtpCfg.NoTLS = emailFlags.noTLS
	}

	subject, err := render.Load(emailFlags.subject)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	body, err := render.Load(emailFlags.template)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}

	// A dry run renders and logs only, so the SMTP account does not have to
	// be configured for it.
	var mailer emailprovider.Mailer = nopMailer{}
	if !emailFlags.dryRun {
		mailer, err = emailprovider.NewSMTPMailer(smtpCfg, *log,
			emailprovider.WithDialer(&net.Dialer{Timeout: emailFlags.timeout}))
		if err != nil {
			return dispatch.WrapConfiguration(err)
		}
	}

	logw, err := sendlog.Open(emailFlags.out)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	defer logw.Close()

	d, err := dispatch.NewEmailDispatcher(
		dispatch.EmailConfig{
			SubjectTemplate: subject,
			BodyTemplate:    body,
			Delay:           emailFlags.delay,
			Retries:         emailFlags.retries,
			StartRow:        emailFlags.startRow,
			Limit:           emailFlags.limit,
			DryRun:          emailFlags.dryRun,
		},
		dispatch.EmailDependencies{Mailer: mailer, Log: logw, Logger: *log},
	)
	if err != nil {
		return err
	}

	ctx, stop := runContext(cmd)
	defer stop()

	var summary dispatch.Summary
	var runErr error
	if emailFlags.to != "" {
		summary, runErr = d.RunOne(ctx, emailFlags.to, render.ParseAssignments(emailFlags.vars))
	} else {
		loader, err := contacts.Open(emailFlags.csvPath, contacts.EmailRule)
		if err != nil {
			return dispatch.WrapConfiguration(err)
		}
		defer loader.Close()
		log.Debug().Strs("headers", loader.Headers()).Msg("contacts file opened")
		summary, runErr = d.Run(ctx, loader)
	}

	fmt.Println(summary.String())
	return runErr
}

// nopMailer stands in for the SMTP session during dry runs, which never
// touch the transport.
type nopMailer struct{}

func (nopMailer) Open(context.Context) error { return errors.New("dry-run mailer cannot open") }

func (nopMailer) Send(context.Context, *emailprovider.Message) error {
	return errors.New("dry-run mailer cannot send")
}

func (nopMailer) Close() error { return nil }
