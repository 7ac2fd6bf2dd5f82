// Package daemon runs the background poller that waits for lock
// requests and starts lock sessions. Requests arrive three ways: the
// lock-request flag file, a logind Lock signal, or a direct call from
// the process itself. Sessions never overlap; a request that lands
// while a session is running is absorbed by the next poll.
package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"latchd/internal/audit"
	"latchd/internal/flagfile"
	"latchd/internal/logging"
)

// Locker runs one blocking lock session.
type Locker interface {
	Lock(origin string) error
}

// Daemon polls the lock-request flag and dispatches lock sessions.
type Daemon struct {
	flag     *flagfile.Flag
	locker   Locker
	interval time.Duration
	requests chan string
	log      *logging.Logger
}

// New builds a daemon. The interval bounds how stale a flag can go
// unnoticed when the filesystem watch is unavailable.
func New(flag *flagfile.Flag, locker Locker, interval time.Duration, log *logging.Logger) *Daemon {
	return &Daemon{
		flag:     flag,
		locker:   locker,
		interval: interval,
		requests: make(chan string, 1),
		log:      log,
	}
}

// Request asks for a lock session with the given origin. Safe from any
// goroutine; dropped when a request is already pending, since one
// session satisfies both.
func (d *Daemon) Request(origin string) {
	select {
	case d.requests <- origin:
	default:
	}
}

// Run polls until the context is cancelled. The flag's directory is
// watched with fsnotify so a raised flag is noticed immediately; the
// ticker is the correctness backstop when the watch fails or misses.
func (d *Daemon) Run(ctx context.Context) error {
	var watchEvents chan fsnotify.Event
	var watchErrors chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("filesystem watch unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		dir := filepath.Dir(d.flag.Path())
		if err := watcher.Add(dir); err != nil {
			d.log.Warn("cannot watch flag directory, polling only",
				"dir", dir, "error", err)
		} else {
			watchEvents = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info("daemon started",
		"flag", d.flag.Path(), "poll_interval", d.interval)

	// A flag raised before startup counts.
	d.poll()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("daemon stopping")
			return nil
		case <-ticker.C:
			d.poll()
		case ev := <-watchEvents:
			if ev.Name == d.flag.Path() && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				d.poll()
			}
		case err := <-watchErrors:
			d.log.Warn("flag watch error", "error", err)
		case origin := <-d.requests:
			d.lock(origin)
		}
	}
}

// poll consumes the flag if raised and runs a session.
func (d *Daemon) poll() {
	raised, err := d.flag.Consume()
	if err != nil {
		d.log.Warn("lock flag rejected", "error", err)
		return
	}
	if raised {
		d.lock(audit.OriginFlag)
	}
}

func (d *Daemon) lock(origin string) {
	d.log.Info("starting lock session", "origin", origin)
	if err := d.locker.Lock(origin); err != nil {
		d.log.Error("lock session failed", "origin", origin, "error", err)
	}
}
