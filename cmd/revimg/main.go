package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/app"
	"github.com/hyperifyio/revimg/internal/httpapi"
	"github.com/hyperifyio/revimg/internal/spam"
)

type options struct {
	Config  string   `short:"c" long:"config" description:"YAML or JSON config file"`
	EnvFile []string `long:"env-file" default:".env" description:"dotenv file with account credentials (repeatable)"`

	Serve   bool   `long:"serve" description:"Run the HTTP API instead of a single query"`
	Listen  string `long:"listen" description:"HTTP listen address"`
	Version bool   `long:"version" description:"Print version and exit"`

	Providers   string        `long:"providers" description:"Comma-separated provider ids"`
	Presets     string        `long:"presets" description:"Selector presets YAML file"`
	Timeout     time.Duration `long:"search.timeout" description:"Deadline for the provider fan-out"`
	Limit       int           `long:"search.limit" description:"Records requested per provider"`
	MaxPer      int           `long:"max.per-provider" description:"Results kept per provider"`
	PerDomain   int           `long:"max.per-domain" description:"Results kept per domain within a provider"`
	MinText     int           `long:"min.text-chars" description:"Drop results with less title/description text"`
	CheckLinks  bool          `long:"links.check" description:"Probe result links and flag broken ones"`
	DropBroken  bool          `long:"links.drop-broken" description:"Drop results whose link probe failed"`
	Service     string        `long:"spam.service" description:"Rule service base URL"`
	Lists       string        `long:"spam.lists" description:"Static hard_blacklist/whitelist YAML file"`
	Suffixes    string        `long:"spam.public-suffix" description:"Public suffix rule file overriding the embedded list"`
	Fallback    bool          `long:"spam.fallback-resolver" description:"Resolve domains by their last two labels"`
	Refresh     time.Duration `long:"spam.refresh" description:"Spam list refresh interval in serve mode"`
	CacheDir    string        `long:"cache.dir" description:"Cache directory"`
	CacheMaxAge time.Duration `long:"cache.max-age" description:"Spam list staleness threshold"`
	CacheClear  bool          `long:"cache.clear" description:"Clear the spam list cache before start"`
	CacheStrict bool          `long:"cache.strict-perms" description:"Restrict cache permissions to the owner"`
	Verify      bool          `long:"verify" description:"Cross-check links with a second account"`
	Target      string        `long:"verify.target" description:"Thing id the poster comments on"`
	Window      time.Duration `long:"verify.window" description:"Wait between posting and polling"`
	MinScore    int           `long:"verify.min-score" description:"Skip rounds when the poster scores lower"`
	Cleanup     bool          `long:"verify.cleanup" description:"Delete verification posts afterwards"`
	Redis       string        `long:"redis" description:"Redis address for the round lock"`
	Store       string        `long:"store" description:"State location: a directory, or sqlite:<path>"`
	UserAgent   string        `long:"user-agent" description:"HTTP User-Agent"`
	Verbose     bool          `short:"v" long:"verbose" description:"Debug logging"`
	LogJSON     bool          `long:"log.json" description:"Log JSON lines instead of console output"`

	Args struct {
		ImageURL string `positional-arg-name:"image-url"`
	} `positional-args:"yes"`
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps errors to the process status. Missing spam data is the only
// fatal condition and exits 2; usage errors exit 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, spam.ErrNoSpamData):
		return 2
	default:
		return 1
	}
}

var errHelp = errors.New("help requested")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, opts, err := loadConfig(args)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.Version {
		fmt.Fprintln(stdout, app.VersionString())
		return nil
	}
	setupLogging(cfg)

	if !opts.Serve && strings.TrimSpace(opts.Args.ImageURL) == "" {
		return errors.New("an image URL is required unless --serve is given")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if opts.Serve {
		return serve(ctx, a)
	}
	results, err := a.Search(ctx, opts.Args.ImageURL)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func setupLogging(cfg app.Config) {
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig layers configuration: defaults, then the config file, then the
// environment (including dotenv files), then flags given on the command line.
func loadConfig(args []string) (app.Config, options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return app.Config{}, opts, errHelp
		}
		return app.Config{}, opts, fmt.Errorf("parse flags: %w", err)
	}

	cfg := app.DefaultConfig()
	if opts.Config != "" {
		fc, err := app.LoadConfigFile(opts.Config)
		if err != nil {
			return cfg, opts, fmt.Errorf("load config %s: %w", opts.Config, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := app.LoadEnvFiles(false, opts.EnvFile...); err != nil {
		return cfg, opts, fmt.Errorf("load env files: %w", err)
	}
	app.ApplyEnvOverrides(&cfg)
	applyFlags(&cfg, &opts, parser)
	return cfg, opts, nil
}

// applyFlags copies every flag that was given explicitly.
func applyFlags(cfg *app.Config, o *options, p *flags.Parser) {
	set := func(name string) bool {
		opt := p.FindOptionByLongName(name)
		return opt != nil && opt.IsSet()
	}
	if set("providers") {
		cfg.Providers = nil
		for _, s := range strings.Split(o.Providers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Providers = append(cfg.Providers, s)
			}
		}
	}
	if set("presets") {
		cfg.PresetsPath = o.Presets
	}
	if set("search.timeout") {
		cfg.SearchTimeout = o.Timeout
	}
	if set("search.limit") {
		cfg.ResultLimit = o.Limit
	}
	if set("max.per-provider") {
		cfg.MaxPerProvider = o.MaxPer
	}
	if set("max.per-domain") {
		cfg.PerDomainCap = o.PerDomain
	}
	if set("min.text-chars") {
		cfg.MinTextChars = o.MinText
	}
	if set("links.check") {
		cfg.CheckLinks = o.CheckLinks
	}
	if set("links.drop-broken") {
		cfg.DropBroken = o.DropBroken
	}
	if set("spam.service") {
		cfg.RuleServiceURL = o.Service
	}
	if set("spam.lists") {
		cfg.ListsPath = o.Lists
	}
	if set("spam.public-suffix") {
		cfg.PublicSuffixFile = o.Suffixes
	}
	if set("spam.fallback-resolver") {
		cfg.FallbackResolver = o.Fallback
	}
	if set("spam.refresh") {
		cfg.RefreshInterval = o.Refresh
	}
	if set("cache.dir") {
		cfg.CacheDir = o.CacheDir
	}
	if set("cache.max-age") {
		cfg.CacheMaxAge = o.CacheMaxAge
	}
	if set("cache.clear") {
		cfg.CacheClear = o.CacheClear
	}
	if set("cache.strict-perms") {
		cfg.CacheStrictPerms = o.CacheStrict
	}
	if set("verify") {
		cfg.VerifyEnabled = o.Verify
	}
	if set("verify.target") {
		cfg.VerifyTarget = o.Target
	}
	if set("verify.window") {
		cfg.VerifyWindow = o.Window
	}
	if set("verify.min-score") {
		cfg.MinPosterScore = o.MinScore
	}
	if set("verify.cleanup") {
		cfg.VerifyCleanup = o.Cleanup
	}
	if set("redis") {
		cfg.RedisAddr = o.Redis
	}
	if set("store") {
		cfg.StorePath = o.Store
	}
	if set("user-agent") {
		cfg.UserAgent = o.UserAgent
	}
	if set("listen") {
		cfg.ListenAddr = o.Listen
	}
	if set("verbose") {
		cfg.Verbose = o.Verbose
	}
	if set("log.json") {
		cfg.LogJSON = o.LogJSON
	}
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	srv := httpapi.NewServer(a, a.Registry(), cfg.SearchTimeout+30*time.Second)
	srv.Records = a.Store()
	srv.Ready = func() bool { return a.Lists().Current() != nil }
	srv.Users = func() httpapi.UserChecker {
		if l := a.Lists().Current(); l != nil {
			return l
		}
		return nil
	}

	go a.Lists().Run(ctx, cfg.RefreshInterval)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.ListenAddr) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
