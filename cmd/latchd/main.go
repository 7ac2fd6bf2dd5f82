// latchd - minimal trusted X11 screen-locking agent
//
//	latchd                  Lock the display now, block until unlocked
//	latchd --daemon         Run the background poller (flag file + logind)
//	latchd --history N      Print the last N audit sessions and exit
//
// latchd grabs keyboard and pointer on a tiny InputOnly window and
// releases them only after a credential is accepted or the
// unlock-override flag is consumed. It exits 0 on unlock and 1 on any
// fatal error, after releasing whatever it had acquired.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"latchd/internal/audit"
	"latchd/internal/auth"
	"latchd/internal/config"
	"latchd/internal/cursor"
	"latchd/internal/daemon"
	"latchd/internal/flagfile"
	"latchd/internal/logging"
	"latchd/internal/security"
	"latchd/internal/session"
	"latchd/internal/xlock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "latchd: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	daemon     bool
	force      bool
	configPath string
	secretFile string
	noPAM      bool
	display    string
	logLevel   string
	cursorPath string
	history    int
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	flags := pflag.NewFlagSet("latchd", pflag.ContinueOnError)
	flags.BoolVar(&opts.daemon, "daemon", false, "run the background poller instead of locking immediately")
	flags.BoolVar(&opts.force, "force", false, "allow running as the superuser")
	flags.StringVar(&opts.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/latchd/latchd.toml)")
	flags.StringVar(&opts.secretFile, "secret-file", "", "path of the fixed-secret file")
	flags.BoolVar(&opts.noPAM, "no-pam", false, "disable the PAM authenticator")
	flags.StringVar(&opts.display, "display", "", "X display to lock (default: $DISPLAY)")
	flags.StringVar(&opts.logLevel, "log-level", "", "minimum log level: debug, info, warn, error")
	flags.StringVar(&opts.cursorPath, "cursor", "", "cursor descriptor file (overrides the probe order)")
	flags.IntVar(&opts.history, "history", 0, "print the last N audit sessions and exit")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", flags.Arg(0))
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	if opts.history > 0 {
		return printHistory(cfg, opts.history)
	}

	if os.Geteuid() == 0 && !opts.force && !cfg.Lock.AllowRoot {
		return fmt.Errorf("refusing to run as root: PAM stacks commonly refuse root authentication, which would make the lock unrecoverable (use --force to override)")
	}

	verifier, err := buildVerifier(cfg, log)
	if err != nil {
		return err
	}

	desc, descPath, err := cursor.Probe(cfg.Cursor.Path)
	if err != nil {
		return fmt.Errorf("cursor: %w", err)
	}
	if descPath != "" {
		log.Info("using cursor descriptor", "path", descPath)
	}

	locker := &displayLocker{
		cfg:      cfg,
		verifier: verifier,
		cursor:   desc,
		log:      log,
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			// The lock still works without its trail.
			log.Warn("audit trail unavailable", "path", cfg.Audit.Path, "error", err)
		} else {
			defer store.Close()
			locker.audit = store
		}
	}

	if opts.daemon {
		return runDaemon(cfg, locker, log)
	}

	return locker.Lock(audit.OriginManual)
}

// loadConfig loads the config file and layers CLI flags on top.
func loadConfig(opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if opts.secretFile != "" {
		cfg.Lock.SecretFile = opts.secretFile
	}
	if opts.noPAM {
		cfg.Lock.UsePAM = false
	}
	if opts.display != "" {
		cfg.Lock.Display = opts.display
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.cursorPath != "" {
		cfg.Cursor.Path = opts.cursorPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Format = format
	if cfg.Logging.Output != "" {
		logCfg.Output = cfg.Logging.Output
	}
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	return logging.New(logCfg)
}

// buildVerifier assembles the authentication sources. A configured
// secret file that fails to load is fatal; so is ending up with no
// source at all.
func buildVerifier(cfg *config.Config, log *logging.Logger) (session.Verifier, error) {
	var sources []auth.Verifier

	if cfg.Lock.SecretFile != "" {
		secret, err := auth.LoadSecretFile(cfg.Lock.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("secret file: %w", err)
		}
		sources = append(sources, secret)
	}

	if cfg.Lock.UsePAM {
		pam, err := auth.NewPAM()
		if err != nil {
			if len(sources) == 0 {
				return nil, fmt.Errorf("pam: %w", err)
			}
			log.Warn("pam unavailable, continuing with secret file", "error", err)
		} else {
			sources = append(sources, pam)
		}
	}

	verifier, err := auth.New(sources...)
	if err != nil {
		return nil, err
	}
	return verifier, nil
}

func printHistory(cfg *config.Config, limit int) error {
	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer store.Close()

	sessions, err := store.Recent(limit)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	for _, s := range sessions {
		end := "open"
		if s.EndedAt != 0 {
			end = time.UnixMilli(s.EndedAt).Format(time.RFC3339)
		}
		outcome := s.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Printf("%s  %-8s %-9s attempts=%d ended=%s\n",
			time.UnixMilli(s.StartedAt).Format(time.RFC3339),
			s.Origin, outcome, s.Attempts, end)
	}
	return nil
}

func runDaemon(cfg *config.Config, locker *displayLocker, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The flag directory must exist before it can be watched, and must
	// not be writable by anyone else: a raised flag triggers a lock.
	if err := security.EnsureSecretDir(filepath.Dir(cfg.Daemon.LockFlag)); err != nil {
		return fmt.Errorf("flag directory: %w", err)
	}

	lockFlag := flagfile.New(cfg.Daemon.LockFlag)
	interval := time.Duration(cfg.Daemon.PollIntervalSec) * time.Second
	d := daemon.New(lockFlag, locker, interval, log)

	if cfg.Daemon.ListenLogind {
		logind, err := daemon.ConnectLogind(log)
		if err != nil {
			log.Warn("logind unavailable", "error", err)
		} else {
			defer logind.Close()
			locker.logind = logind
			go logind.Watch(ctx, d)
		}
	}

	return d.Run(ctx)
}

// displayLocker runs one full lock session against the X display.
type displayLocker struct {
	cfg      *config.Config
	verifier session.Verifier
	cursor   *cursor.Descriptor
	audit    *audit.Store
	logind   *daemon.Logind
	log      *logging.Logger
}

// Lock acquires the display, runs the session to completion and tears
// everything down. Fatal errors propagate after cleanup.
func (dl *displayLocker) Lock(origin string) error {
	var auditID int64
	if dl.audit != nil {
		id, err := dl.audit.Begin(time.Now().UnixMilli(), origin)
		if err != nil {
			dl.log.Warn("audit begin failed", "error", err)
		} else {
			auditID = id
		}
	}

	if dl.logind != nil {
		if err := dl.logind.SetLockedHint(true); err != nil {
			dl.log.Warn("set locked hint", "error", err)
		}
		defer func() {
			if err := dl.logind.SetLockedHint(false); err != nil {
				dl.log.Warn("clear locked hint", "error", err)
			}
		}()
	}

	result, err := dl.lockDisplay()

	if dl.audit != nil && auditID != 0 {
		outcome := audit.OutcomeAborted
		attempts := 0
		if err == nil {
			attempts = result.Attempts
			switch result.Outcome {
			case session.UnlockedOverride:
				outcome = audit.OutcomeOverride
			default:
				outcome = audit.OutcomePassword
			}
		}
		if aerr := dl.audit.End(auditID, time.Now().UnixMilli(), outcome, attempts); aerr != nil {
			dl.log.Warn("audit end failed", "error", aerr)
		}
	}

	return err
}

func (dl *displayLocker) lockDisplay() (session.Result, error) {
	display, err := xlock.Connect(dl.cfg.Lock.Display)
	if err != nil {
		return session.Result{}, err
	}
	defer display.Close()

	cur, err := xlock.CreateCursor(display, dl.cursor)
	if err != nil {
		return session.Result{}, err
	}
	defer xlock.FreeCursor(display, cur)

	grab, err := xlock.Acquire(display, cur)
	if err != nil {
		return session.Result{}, err
	}

	input, err := xlock.NewInputContext(display)
	if err != nil {
		grab.Release()
		return session.Result{}, err
	}

	override := flagfile.New(dl.cfg.Daemon.UnlockFlag)
	events := xlock.NewEvents(display, input, dl.log)
	decoder := xlock.NewDecoder(input)

	sess := session.New(events, decoder, dl.verifier, override, grab, dl.log)
	result, err := sess.Run()
	if err != nil {
		return session.Result{}, err
	}

	dl.log.Info("display unlocked", "attempts", result.Attempts)
	return result, nil
}
