package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/99designs/keyring"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/config"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/repo"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/router"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/sink"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/database"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/utilities"
)

const usage = `usage: secretgen <command> [flags]

commands:
  generate   generate a fresh secret bundle (default)
  verify     verify the service tokens of an env file or the keyring
  audit      list the recorded fingerprints of a bundle
  serve      run the HTTP bootstrap endpoint
`

func main() {
	// best-effort: a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "secretgen: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	command := "generate"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := config.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg, err := utilities.InitLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	switch command {
	case "generate":
		err = generate(ctx, cfg, sugar, args, stdout, stderr)
	case "verify":
		openRing := func() (keyring.Keyring, error) {
			return sink.OpenKeyring(cfg.KeyringService, cfg.KeyringPassword)
		}
		err = verify(args, openRing, stdout, stderr)
	case "audit":
		err = audit(ctx, cfg, args, stdout, stderr)
	case "serve":
		err = serve(ctx, cfg, sugar, args, stderr)
	case "help":
		_, _ = io.WriteString(stdout, usage)
	default:
		_, _ = io.WriteString(stderr, usage)
		err = fmt.Errorf("unknown command %q", command)
	}
	// pflag already printed the usage for --help
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func newGenerator(cfg config.Config, logger *zap.SugaredLogger) (*credential.Generator, error) {
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}
	return credential.NewGenerator(credential.WithDefinitions(defs), credential.WithLogger(logger)), nil
}

func generate(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, args []string, stdout, stderr io.Writer) error {
	var out, sinks string
	var force bool
	fs := newFlagSet("generate", stderr)
	fs.StringVarP(&out, "out", "o", "", "write the env file here instead of stdout")
	fs.BoolVar(&force, "force", false, "overwrite an existing env file")
	fs.StringVar(&sinks, "sink", "", "extra sinks: keyring,gcp,audit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}
	names, err := sink.ParseNames(sinks)
	if err != nil {
		return err
	}
	if slices.Contains(names, "file") && out == "" {
		return errors.New("file sink needs --out")
	}
	names = slices.DeleteFunc(names, func(n string) bool { return n == "file" })

	var file *sink.FileSink
	if out != "" {
		file = &sink.FileSink{Path: out, Force: force}
		if err := file.Preflight(); err != nil {
			return err
		}
	}

	// open every sink before generating so a misconfigured one fails early
	extras, closeAll, err := openSinks(ctx, cfg, names)
	if err != nil {
		return err
	}
	defer closeAll()

	b, err := gen.GenerateSecretBundle(ctx)
	if err != nil {
		return err
	}
	if err := persist(ctx, logger, b, extras, file); err != nil {
		return err
	}
	if file == nil {
		_, err = io.WriteString(stdout, credential.RenderEnv(b))
		return err
	}
	return nil
}

// persist stores b in every extra sink and writes the env file only once
// all of them succeeded.
func persist(ctx context.Context, logger *zap.SugaredLogger, b *entity.Bundle, extras []sink.Sink, file *sink.FileSink) error {
	targets := slices.Clip(extras)
	if file != nil {
		targets = append(targets, file)
	}
	if len(targets) == 0 {
		return nil
	}
	return sink.NewMulti(logger, targets...).Store(ctx, b)
}

func openSinks(ctx context.Context, cfg config.Config, names []string) ([]sink.Sink, func(), error) {
	var targets []sink.Sink
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	fail := func(err error) ([]sink.Sink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	for _, name := range names {
		switch name {
		case "keyring":
			ring, err := sink.OpenKeyring(cfg.KeyringService, cfg.KeyringPassword)
			if err != nil {
				return fail(err)
			}
			targets = append(targets, sink.NewKeyringSink(ring))
		case "gcp":
			if cfg.GCPProject == "" {
				return fail(errors.New("gcp sink needs SECRETGEN_GCP_PROJECT"))
			}
			client, err := sink.DialSecretManager(ctx)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, func() { _ = client.Close() })
			targets = append(targets, sink.NewSecretManagerSink(client, cfg.GCPProject))
		case "audit":
			r, closeDB, err := openAuditRepo(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, closeDB)
			ids, err := utilities.NewIDNode(cfg.SnowflakeNode)
			if err != nil {
				return fail(fmt.Errorf("snowflake node: %w", err))
			}
			targets = append(targets, sink.NewAuditSink(r, ids))
		}
	}
	return targets, closeAll, nil
}

func openAuditRepo(ctx context.Context, cfg config.Config) (*repo.AuditRepo, func(), error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	r := repo.NewAuditRepo(db)
	if err := r.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure audit table: %w", err)
	}
	return r, func() { _ = db.Close() }, nil
}

var verifyNames = []string{credential.JWTSecret, credential.AnonKey, credential.ServiceRoleKey}

func verify(args []string, openRing func() (keyring.Keyring, error), stdout, stderr io.Writer) error {
	var envFile, from string
	fs := newFlagSet("verify", stderr)
	fs.StringVar(&envFile, "env", ".env", "env file holding JWT_SECRET, ANON_KEY and SERVICE_ROLE_KEY")
	fs.StringVar(&from, "from", "env", "where to read the bundle: env or keyring")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var b *entity.Bundle
	var origin string
	switch from {
	case "env":
		f, err := os.Open(envFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if b, err = credential.ParseEnv(f); err != nil {
			return err
		}
		origin = envFile
	case "keyring":
		ring, err := openRing()
		if err != nil {
			return err
		}
		if b, err = sink.NewKeyringSink(ring).Load(verifyNames); err != nil {
			return err
		}
		origin = "keyring"
	default:
		return fmt.Errorf("unknown --from %q (want env or keyring)", from)
	}
	return verifyBundle(b, origin, time.Now(), stdout)
}

func verifyBundle(b *entity.Bundle, origin string, now time.Time, stdout io.Writer) error {
	key, ok := b.Get(credential.JWTSecret)
	if !ok {
		return fmt.Errorf("%s missing from %s", credential.JWTSecret, origin)
	}
	for _, name := range []string{credential.AnonKey, credential.ServiceRoleKey} {
		tok, ok := b.Get(name)
		if !ok {
			return fmt.Errorf("%s missing from %s", name, origin)
		}
		c, err := credential.VerifyServiceToken(tok, key, now)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(stdout, "%s ok role=%s iss=%s iat=%s exp=%s\n", name, c.Role, c.Issuer,
			c.IssuedAt.Format(time.DateOnly), c.ExpiresAt.Format(time.DateOnly))
	}
	return nil
}

type auditLister interface {
	ListByBundle(ctx context.Context, bundleID string) ([]entity.AuditRow, error)
}

func audit(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	var bundleID string
	fs := newFlagSet("audit", stderr)
	fs.StringVar(&bundleID, "bundle", "", "bundle id as logged by generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if bundleID == "" {
		return errors.New("audit needs --bundle")
	}

	r, closeDB, err := openAuditRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	return listAudit(ctx, r, bundleID, stdout)
}

var errBundleNotAudited = errors.New("no audit rows for bundle")

func listAudit(ctx context.Context, l auditLister, bundleID string, stdout io.Writer) error {
	rows, err := l.ListByBundle(ctx, bundleID)
	if err != nil {
		return fmt.Errorf("list audit rows: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", errBundleNotAudited, bundleID)
	}
	for _, row := range rows {
		fmt.Fprintf(stdout, "%s fingerprint=%s length=%d generated=%s\n",
			row.Name, row.Fingerprint, row.Length, row.GeneratedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, args []string, stderr io.Writer) error {
	addr := cfg.Addr
	fs := newFlagSet("serve", stderr)
	fs.StringVar(&addr, "addr", addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.RegisterRoutes(logger, credential.NewHandler(gen, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		logger.Warnf("http server shutdown failed: %v", err)
	}
	logger.Info("goodbye")
	return nil
}
