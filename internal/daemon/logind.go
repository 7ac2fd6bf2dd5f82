package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"latchd/internal/audit"
	"latchd/internal/logging"
)

const (
	logindService   = "org.freedesktop.login1"
	logindManager   = "/org/freedesktop/login1"
	sessionIface    = "org.freedesktop.login1.Session"
	lockSignalName  = sessionIface + ".Lock"
	setLockedMethod = sessionIface + ".SetLockedHint"
)

// Logind subscribes to the login1 session's Lock signal and mirrors
// lock state back through the LockedHint property.
type Logind struct {
	conn    *dbus.Conn
	session dbus.BusObject
	signals chan *dbus.Signal
	log     *logging.Logger
}

// ConnectLogind resolves the caller's login1 session on the system bus
// and registers for its Lock signal. The session is taken from
// XDG_SESSION_ID, falling back to logind's "auto" resolution.
func ConnectLogind(log *logging.Logger) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("daemon: connect system bus: %w", err)
	}

	sessionID := os.Getenv("XDG_SESSION_ID")
	if sessionID == "" {
		sessionID = "auto"
	}

	var sessionPath dbus.ObjectPath
	err = conn.Object(logindService, logindManager).
		Call("org.freedesktop.login1.Manager.GetSession", 0, sessionID).
		Store(&sessionPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: resolve session %q: %w", sessionID, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(sessionIface),
		dbus.WithMatchSender(logindService),
		dbus.WithMatchMember("Lock"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: register Lock signal: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	return &Logind{
		conn:    conn,
		session: conn.Object(logindService, sessionPath),
		signals: signals,
		log:     log,
	}, nil
}

// Watch forwards Lock signals to the daemon until the context is
// cancelled.
func (l *Logind) Watch(ctx context.Context, d *Daemon) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-l.signals:
			if !ok {
				return
			}
			if sig == nil || sig.Path != l.session.Path() {
				continue
			}
			if sig.Name == lockSignalName {
				l.log.Info("logind requested lock")
				d.Request(audit.OriginLogind)
			}
		}
	}
}

// SetLockedHint tells logind whether the session is currently locked.
func (l *Logind) SetLockedHint(locked bool) error {
	if err := l.session.Call(setLockedMethod, 0, locked).Err; err != nil {
		return fmt.Errorf("daemon: set locked hint: %w", err)
	}
	return nil
}

// Close unsubscribes and drops the bus connection.
func (l *Logind) Close() error {
	l.conn.RemoveSignal(l.signals)
	return l.conn.Close()
}
