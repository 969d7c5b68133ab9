package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/bulksend/internal/config"
	"github.com/example/bulksend/internal/contacts"
	"github.com/example/bulksend/internal/dispatch"
	"github.com/example/bulksend/internal/logger"
	smsprovider "github.com/example/bulksend/internal/providers/sms"
	"github.com/example/bulksend/internal/render"
	"github.com/example/bulksend/internal/sendlog"
)

var smsCmd = &cobra.Command{
	Use:   "sms",
	Short: "Send a templated SMS to each contact through an HTTP gateway",
	RunE:  runSMS,
}

var smsFlags struct {
	csvPath  string
	template string

	gateway string
	auth    string

	countryPrefix string
	ensurePlus    bool

	out      string
	delay    time.Duration
	retries  int
	timeout  time.Duration
	dryRun   bool
	limit    int
	startRow int
}

func init() {
	f := smsCmd.Flags()
	f.StringVar(&smsFlags.csvPath, "csv", "", "contacts CSV file with a header row")
	f.StringVar(&smsFlags.template, "template", "", "message template, inline text or a file path")

	f.StringVar(&smsFlags.gateway, "gateway", "", "SMS gateway URL (overrides BULKSEND_GATEWAY_URL)")
	f.StringVar(&smsFlags.auth, "auth", "", "Authorization header value sent to the gateway")

	f.StringVar(&smsFlags.countryPrefix, "country-prefix", "", "country code applied to local numbers, e.g. +254")
	f.BoolVar(&smsFlags.ensurePlus, "ensure-plus", false, "force a leading + on every number")

	f.StringVar(&smsFlags.out, "out", "send_log.csv", "per-attempt send log, appended to across runs")
	f.DurationVar(&smsFlags.delay, "delay", 200*time.Millisecond, "pause after each record")
	f.IntVar(&smsFlags.retries, "retries", 0, "extra delivery attempts per message")
	f.DurationVar(&smsFlags.timeout, "timeout", 10*time.Second, "HTTP timeout per gateway request")
	f.BoolVar(&smsFlags.dryRun, "dry-run", false, "render and log every record without sending")
	f.IntVar(&smsFlags.limit, "limit", 0, "stop after this many records, 0 means all")
	f.IntVar(&smsFlags.startRow, "start-row", 1, "first data row to process, 1-based")

	rootCmd.AddCommand(smsCmd)
}

func runSMS(cmd *cobra.Command, args []string) error {
	if smsFlags.template == "" {
		return dispatch.WrapConfiguration(errors.New("--template is required"))
	}
	if smsFlags.csvPath == "" {
		return dispatch.WrapConfiguration(errors.New("--csv is required"))
	}

	cfg, err := config.Load()
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}

	gatewayCfg := cfg.Gateway
	if smsFlags.gateway != "" {
		gatewayCfg.URL = smsFlags.gateway
	}
	if smsFlags.auth != "" {
		gatewayCfg.Token = smsFlags.auth
	}

	message, err := render.Load(smsFlags.template)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}

	// A dry run renders and logs only, so no gateway has to be configured.
	var provider smsprovider.Provider = nopProvider{}
	if !smsFlags.dryRun {
		provider, err = smsprovider.NewGatewayProvider(gatewayCfg, *log,
			smsprovider.WithHTTPClient(&http.Client{Timeout: smsFlags.timeout}))
		if err != nil {
			return dispatch.WrapConfiguration(err)
		}
	}

	logw, err := sendlog.Open(smsFlags.out)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	defer logw.Close()

	d, err := dispatch.NewSMSDispatcher(
		dispatch.SMSConfig{
			MessageTemplate: message,
			Delay:           smsFlags.delay,
			Retries:         smsFlags.retries,
			StartRow:        smsFlags.startRow,
			Limit:           smsFlags.limit,
			DryRun:          smsFlags.dryRun,
			CountryPrefix:   smsFlags.countryPrefix,
			EnsurePlus:      smsFlags.ensurePlus,
		},
		dispatch.SMSDependencies{Provider: provider, Log: logw, Logger: *log},
	)
	if err != nil {
		return err
	}

	loader, err := contacts.Open(smsFlags.csvPath, contacts.PhoneRule)
	if err != nil {
		return dispatch.WrapConfiguration(err)
	}
	defer loader.Close()
	log.Debug().Strs("headers", loader.Headers()).Msg("contacts file opened")

	ctx, stop := runContext(cmd)
	defer stop()

	summary, runErr := d.Run(ctx, loader)
	fmt.Println(summary.String())
	return runErr
}

// nopProvider stands in for the gateway during dry runs.
type nopProvider struct{}

func (nopProvider) Send(context.Context, *smsprovider.Payload) (*smsprovider.RawResponse, error) {
	return nil, errors.New("dry-run provider cannot send")
}
