package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tabmail/internal/history"
	"github.com/aussiebroadwan/tabmail/internal/mail"
	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
	"github.com/aussiebroadwan/tabmail/pkg/slogx"
	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the session, the mail façade and the CLI together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	registry *prometheus.Registry
	tokens   tokenstore.Store
	client   *authsdk.SDKClient
	session  *authsdk.Session
	mail     *mail.Service
	history  *history.Store
	nav      *cliNavigator

	view   *view
	prompt Prompter
	now    func() time.Time
}

// New creates an Application writing command output to out.
func New(cfg Config, out io.Writer) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabmail",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		registry: prometheus.NewRegistry(),
		view:     newView(out),
		prompt:   formPrompter{},
		now:      time.Now,
	}

	app.initTokens()
	app.initClient()

	store, err := history.Open(cfg.HistoryDB, cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to open search history: %w", err)
	}
	app.history = store

	return app, nil
}

func (app *Application) initTokens() {
	switch app.cfg.TokenBackend {
	case BackendMemory:
		app.tokens = tokenstore.NewMemory()
	default:
		app.tokens = tokenstore.OpenKeyring(tokenstore.KeyringConfig{
			FileDir:      app.cfg.KeyringDir,
			FilePassword: app.cfg.KeyringPass,
		}, app.logger)
	}
}

func (app *Application) initClient() {
	client := authsdk.NewSDKClient(app.cfg.APIURL, app.tokens, app.logger)
	client.HTTPClient.Timeout = app.cfg.HTTPTimeout
	client.AccessTTL = app.cfg.AccessTTL
	client.RefreshTTL = app.cfg.RefreshTTL

	if app.cfg.RateLimitRPS > 0 {
		burst := max(int(app.cfg.RateLimitRPS), 1)
		client.Limiter = rate.NewLimiter(rate.Limit(app.cfg.RateLimitRPS), burst)
	}

	app.nav = newNavigator(app.logger)
	client.Navigator = app.nav
	client.UseMetrics(authsdk.NewMetrics(app.registry))

	app.client = client
	app.session = authsdk.NewSession(client)
	app.mail = mail.NewService(client, app.logger)
}

// Shutdown releases resources and logs the request counters.
func (app *Application) Shutdown() error {
	app.logMetrics()
	app.session.Close()

	if err := app.history.Close(); err != nil {
		app.logger.Error("error closing search history", "error", err)
		return err
	}
	return nil
}

// logMetrics writes every counter at debug level. The CLI has no scrape
// endpoint, so this is where the gateway and renewal counts surface.
func (app *Application) logMetrics() {
	families, err := app.registry.Gather()
	if err != nil {
		app.logger.Debug("gathering metrics failed", "error", err)
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			app.logger.Debug("metric",
				"name", mf.GetName(),
				"labels", strings.Join(labels, ","),
				"value", m.GetCounter().GetValue(),
			)
		}
	}
}

// Run executes one CLI command. The session startup check always runs first.
func (app *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		app.usage()
		return nil
	}

	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		app.usage()
		return fmt.Errorf("unknown command %q", name)
	}

	ctx = slogx.WithContext(ctx, app.logger)
	ctx = slogx.WithCommand(ctx, name)

	app.nav.reset()
	unsubscribe := app.session.Subscribe(app.onSessionChange())
	defer unsubscribe()

	state := app.session.Start(ctx)
	slogx.FromContext(ctx).Debug("session started",
		"authenticated", state.Authenticated,
		"user", maskedEmail(state.User),
	)

	err := cmd.run(ctx, app, rest)

	if app.nav.Location() == authsdk.LoginPath && name != "login" && name != "register" {
		app.view.println(app.view.muted.Render("Run `tabmail login` to sign in."))
	}
	return err
}

// onSessionChange reports a session that ended under a running command.
func (app *Application) onSessionChange() func(authsdk.State) {
	var lastErr string
	return func(st authsdk.State) {
		if st.Error == lastErr {
			return
		}
		lastErr = st.Error
		if st.Error == authsdk.SessionExpiredMessage {
			app.view.warning(st.Error)
		}
	}
}

func maskedEmail(u *authsdk.User) string {
	if u == nil {
		return ""
	}
	return slogx.MaskEmail(u.Email)
}
