package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/callback"
	"github.com/mattjoyce/launchkey/internal/codec"
	"github.com/mattjoyce/launchkey/internal/config"
	"github.com/mattjoyce/launchkey/internal/journal"
	"github.com/mattjoyce/launchkey/internal/keys"
	"github.com/mattjoyce/launchkey/internal/lock"
	"github.com/mattjoyce/launchkey/internal/log"
	"github.com/mattjoyce/launchkey/internal/request"
	"github.com/mattjoyce/launchkey/internal/storage"
	"github.com/mattjoyce/launchkey/internal/transport"
	"github.com/mattjoyce/launchkey/internal/webhook"
)

// app is the wiring shared by every action that talks to the service.
type app struct {
	cfg     *config.Config
	keys    *keys.Material
	client  *transport.Client
	handler *callback.Handler
	logger  *slog.Logger
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	km, err := cfg.LoadKeys()
	if err != nil {
		return nil, err
	}
	signer, err := cfg.Signer(km)
	if err != nil {
		return nil, err
	}

	client := transport.NewClient(
		transport.NewHTTPSender(cfg.API.BaseURL, cfg.API.Timeout),
		request.NewBuilder(signer),
		km,
		cfg.API.AppKey,
		transport.WithLogger(log.WithComponent("transport")),
	)
	handler := callback.NewHandler(km, client,
		callback.WithTolerance(cfg.Callback.MaxClockSkew),
		callback.WithLogger(log.WithComponent("callback")),
	)

	return &app{
		cfg:     cfg,
		keys:    km,
		client:  client,
		handler: handler,
		logger:  log.WithComponent("main"),
	}, nil
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", config.DefaultConfigPath(), "Path to launchkey.yaml")
}

func parseFlags(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return false
	}
	return true
}

func reportError(op string, err error) int {
	if kind := apierr.KindOf(err); kind != apierr.KindUnknown {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %v\n", op, kind, err)
	} else {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", op, err)
	}
	return 1
}

// --- callback ---

func runCallbackNoun(args []string) int {
	return dispatchNoun("callback", args, map[string]func([]string) int{
		"serve":  runCallbackServe,
		"recent": runCallbackRecent,
	}, "serve, recent")
}

func runCallbackServe(args []string) int {
	fs := flag.NewFlagSet("callback serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	statePath := fs.String("state", "", "Override state.path")
	if !parseFlags(fs, args) {
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *statePath != "" {
		a.cfg.State.Path = *statePath
	}

	fingerprint, _ := keys.Fingerprint(a.keys.ServicePublicKey())
	a.logger.Info("launchkey starting",
		"version", version,
		"config", a.cfg.Path(),
		"service_key", shortFingerprint(fingerprint),
		"signature_scheme", a.cfg.API.SignatureScheme,
	)

	stateLock, err := lock.Acquire(a.cfg.State.Path)
	if err != nil {
		a.logger.Error("failed to acquire state lock (another instance may be running)", "error", err)
		return 1
	}
	defer stateLock.Release()
	a.logger.Info("acquired state lock", "path", stateLock.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, a.cfg.State.Path)
	if err != nil {
		a.logger.Error("failed to open database", "path", a.cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	a.logger.Info("database opened", "path", a.cfg.State.Path)

	whConfig, err := webhook.FromGlobalConfig(&a.cfg.Callback)
	if err != nil {
		a.logger.Error("failed to configure callback endpoint", "error", err)
		return 1
	}
	server := webhook.New(whConfig, a.handler, journal.New(db), log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	a.logger.Info("launchkey running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		a.logger.Error("callback server failed", "error", err)
		return 1
	}

	a.logger.Info("launchkey stopped")
	return 0
}

type journalEntryView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	AuthRequest string `json:"auth_request,omitempty"`
	UserHash    string `json:"user_hash,omitempty"`
	Authorized  *bool  `json:"authorized,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

func runCallbackRecent(args []string) int {
	fs := flag.NewFlagSet("callback recent", flag.ContinueOnError)
	configPath := configFlag(fs)
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if !parseFlags(fs, args) {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, *limit)
	if err != nil {
		return reportError("callback recent", err)
	}

	views := make([]journalEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, journalEntryView{
			ID:          e.ID,
			Kind:        e.Kind,
			AuthRequest: e.AuthRequest,
			UserHash:    e.UserHash,
			Authorized:  e.Authorized,
			ReceivedAt:  e.ReceivedAt.Format(time.RFC3339),
		})
	}
	if *jsonOut {
		return printJSON(views)
	}

	if len(views) == 0 {
		fmt.Println("no callbacks recorded")
		return 0
	}
	for _, v := range views {
		outcome := "-"
		if v.Authorized != nil {
			outcome = fmt.Sprintf("authorized=%t", *v.Authorized)
		}
		fmt.Printf("%s  %-6s  %s  %s  %s\n", v.ReceivedAt, v.Kind, v.AuthRequest, v.UserHash, outcome)
	}
	return 0
}

// --- auth ---

func runAuthNoun(args []string) int {
	return dispatchNoun("auth", args, map[string]func([]string) int{
		"request": runAuthRequest,
		"poll":    runAuthPoll,
	}, "request, poll")
}

func runAuthRequest(args []string) int {
	fs := flag.NewFlagSet("auth request", flag.ContinueOnError)
	configPath := configFlag(fs)
	username := fs.String("username", "", "Username to authenticate (required)")
	session := fs.Bool("session", false, "Request a session rather than a one-time authorization")
	pushID := fs.Bool("push-id", false, "Ask the service to return the user push id")
	if !parseFlags(fs, args) {
		return 1
	}
	if *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: launchkey auth request --username <name> [--session] [--push-id]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	id, err := a.client.Auths(context.Background(), transport.AuthsRequest{
		Username:   *username,
		Session:    *session,
		UserPushID: *pushID,
	})
	if err != nil {
		return reportError("auth request", err)
	}
	fmt.Println(id)
	return 0
}

type authResultView struct {
	AuthRequest      string `json:"auth_request"`
	Authorized       bool   `json:"authorized"`
	UserHash         string `json:"user_hash"`
	OrganizationUser string `json:"organization_user,omitempty"`
	UserPushID       string `json:"user_push_id,omitempty"`
	DeviceID         string `json:"device_id,omitempty"`
}

func runAuthPoll(args []string) int {
	fs := flag.NewFlagSet("auth poll", flag.ContinueOnError)
	configPath := configFlag(fs)
	id := fs.String("id", "", "Auth request id (required)")
	wait := fs.Duration("wait", 0, "Keep polling while the request is pending, up to this long")
	interval := fs.Duration("interval", 2*time.Second, "Delay between polls when --wait is set")
	if !parseFlags(fs, args) {
		return 1
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: launchkey auth poll --id <auth_request> [--wait 60s]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}

	poll, err := pollUntilDone(ctx, a.client, *id, *wait > 0, *interval)
	if err != nil {
		return reportError("auth poll", err)
	}

	resp, err := a.handler.HandleCallback(ctx, poll.Payload(*id))
	if err != nil {
		return reportError("auth verify", err)
	}
	auth, ok := resp.(callback.AuthResponse)
	if !ok {
		fmt.Fprintf(os.Stderr, "auth poll: unexpected %s response\n", resp.Kind())
		return 1
	}
	return printJSON(authResultView{
		AuthRequest:      auth.AuthRequestID,
		Authorized:       auth.Authorized,
		UserHash:         auth.UserHash,
		OrganizationUser: auth.OrganizationUser,
		UserPushID:       auth.UserPushID,
		DeviceID:         auth.DeviceID,
	})
}

// pollUntilDone polls id. A pending request is reported by the service as an
// InvalidRequest; with retry set it is polled again after interval until ctx
// expires.
func pollUntilDone(ctx context.Context, c *transport.Client, id string, retry bool, interval time.Duration) (*transport.PollResponse, error) {
	for {
		poll, err := c.Poll(ctx, id)
		if err == nil || !retry || apierr.KindOf(err) != apierr.KindInvalidRequest {
			return poll, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(interval):
		}
	}
}

// --- user ---

func runUserNoun(args []string) int {
	return dispatchNoun("user", args, map[string]func([]string) int{
		"create": runUserCreate,
	}, "create")
}

func runUserCreate(args []string) int {
	fs := flag.NewFlagSet("user create", flag.ContinueOnError)
	configPath := configFlag(fs)
	identifier := fs.String("identifier", "", "Unique identifier of the user in your application (required)")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if !parseFlags(fs, args) {
		return 1
	}
	if *identifier == "" {
		fmt.Fprintln(os.Stderr, "Usage: launchkey user create --identifier <id> [--json]")
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	data, err := a.client.Users(context.Background(), *identifier)
	if err != nil {
		return reportError("user create", err)
	}
	if *jsonOut {
		return printJSON(data)
	}
	fmt.Printf("code: %s\n", data.Code)
	fmt.Printf("qrcode: %s\n", data.QRCode)
	return 0
}

// --- service ---

func runServiceNoun(args []string) int {
	return dispatchNoun("service", args, map[string]func([]string) int{
		"ping": runServicePing,
	}, "ping")
}

type pingView struct {
	ServiceTime string `json:"service_time"`
	ClockSkew   string `json:"clock_skew"`
	Fingerprint string `json:"fingerprint"`
	Pinned      bool   `json:"matches_configured_key"`
}

func runServicePing(args []string) int {
	fs := flag.NewFlagSet("service ping", flag.ContinueOnError)
	configPath := configFlag(fs)
	if !parseFlags(fs, args) {
		return 1
	}

	a, err := loadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ping, err := a.client.Ping(context.Background())
	if err != nil {
		return reportError("service ping", err)
	}
	serviceTime, err := ping.Time()
	if err != nil {
		return reportError("service ping", apierr.InvalidResponse("Error parsing response body", err))
	}

	view := pingView{
		ServiceTime: serviceTime.Format(time.RFC3339),
		ClockSkew:   time.Since(serviceTime).Round(time.Second).String(),
	}
	if pub, err := codec.ParsePublicKeyPEM([]byte(ping.Key)); err == nil {
		view.Fingerprint, _ = keys.Fingerprint(pub)
		configured, _ := keys.Fingerprint(a.keys.ServicePublicKey())
		view.Pinned = view.Fingerprint == configured
	}
	return printJSON(view)
}

// --- config ---

func runConfigNoun(args []string) int {
	return dispatchNoun("config", args, map[string]func([]string) int{
		"check": runConfigCheck,
	}, "check")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := configFlag(fs)
	if hasHelpFlag(args) {
		fmt.Println("Usage: launchkey config check [--config PATH]")
		return 0
	}
	if !parseFlags(fs, args) {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	km, err := cfg.LoadKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Keys invalid: %v\n", err)
		return 1
	}
	fingerprint, err := keys.Fingerprint(km.ServicePublicKey())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Keys invalid: %v\n", err)
		return 1
	}

	fmt.Printf("config: %s\n", cfg.Path())
	fmt.Printf("base_url: %s\n", cfg.API.BaseURL)
	fmt.Printf("signature_scheme: %s\n", cfg.API.SignatureScheme)
	fmt.Printf("service_key: %s\n", fingerprint)
	if cfg.API.ServiceKeyFingerprint != "" {
		fmt.Println("service_key_pinned: true")
	}
	fmt.Println("OK")
	return 0
}

func shortFingerprint(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16]
}
