// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/nm-connection-action/lib/clock"
	"github.com/bureau-foundation/nm-connection-action/lib/config"
	"github.com/bureau-foundation/nm-connection-action/lib/sysbus"
)

// teardownTimeout bounds unsubscribing at exit. The caller's context is
// usually already cancelled by then, so teardown uses its own.
const teardownTimeout = 5 * time.Second

// Bus is the subset of *sysbus.Session the watcher uses.
type Bus interface {
	PropertyReader
	Subscribe(ctx context.Context, rule sysbus.MatchRule) (sysbus.Token, <-chan *dbus.Signal, error)
	Unsubscribe(ctx context.Context, token sysbus.Token) error
	Done() <-chan struct{}
}

// Options configures a Watcher. Bus, Connections and Logger are
// required; zero values elsewhere select defaults.
type Options struct {
	Bus         Bus
	Connections *config.Config

	// PropertyTimeout bounds each Id/Uuid read.
	PropertyTimeout time.Duration

	// Shell runs scripts as `<Shell> -c <script>`.
	Shell string

	// Stdout and Stderr are inherited by scripts. Nil selects the
	// watcher's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// CompletionQueue is the capacity of the script completion channel.
	CompletionQueue int

	// AdoptActive treats connections that are already active at startup
	// as if they had just come up: they are tracked and their up-script
	// runs.
	AdoptActive bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Watcher owns the bus handle, the configuration, and the active
// connection table, and runs the single consumer loop over them.
type Watcher struct {
	bus             Bus
	propertyTimeout time.Duration
	adoptActive     bool
	clock           clock.Clock
	logger          *slog.Logger

	resolver   *Resolver
	tracker    *Tracker
	dispatcher *Dispatcher
	supervisor *Supervisor

	// observed, when set, is called from the loop after each completion
	// is observed. Tests use it to synchronize with script exits.
	observed func(Completion)
}

// New validates options and returns a Watcher ready to Run.
func New(options Options) (*Watcher, error) {
	if options.Bus == nil {
		return nil, errors.New("watcher: Bus is required")
	}
	if options.Connections == nil {
		return nil, errors.New("watcher: Connections is required")
	}
	if options.Logger == nil {
		return nil, errors.New("watcher: Logger is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.PropertyTimeout <= 0 {
		options.PropertyTimeout = DefaultPropertyTimeout
	}

	return &Watcher{
		bus:             options.Bus,
		propertyTimeout: options.PropertyTimeout,
		adoptActive:     options.AdoptActive,
		clock:           options.Clock,
		logger:          options.Logger,
		resolver:        NewResolver(options.Bus, options.PropertyTimeout),
		tracker:         NewTracker(),
		dispatcher: NewDispatcher(options.Connections, options.Shell, options.Stdout, options.Stderr,
			options.Clock, options.Logger.With("component", "dispatcher")),
		supervisor: NewSupervisor(options.CompletionQueue, options.Clock,
			options.Logger.With("component", "supervisor")),
	}, nil
}

// Run subscribes to the object manager signals and processes events
// until ctx is cancelled, the bus connection is lost, or both signal
// streams have closed and every started script has been observed.
//
// Cancellation is a clean exit and returns nil. A lost bus returns
// ErrBusSessionLost. On every exit path after subscribing, both
// subscriptions are removed; removal failures are returned as a
// *UnsubscribeError joined with any loop error.
func (w *Watcher) Run(ctx context.Context) (err error) {
	addedToken, added, err := w.bus.Subscribe(ctx, InterfacesAddedRule)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", InterfacesAddedRule.Member, err)
	}
	removedToken, removed, err := w.bus.Subscribe(ctx, InterfacesRemovedRule)
	if err != nil {
		err = fmt.Errorf("subscribing to %s: %w", InterfacesRemovedRule.Member, err)
		return errors.Join(err, w.teardown(addedToken))
	}
	defer func() {
		err = errors.Join(err, w.teardown(addedToken, removedToken))
	}()

	loopContext, cancel := context.WithCancel(ctx)
	defer cancel()
	events := Merge(loopContext, added, removed, ActiveConnectionPrefix)

	if w.adoptActive {
		w.adopt(ctx)
	}

	w.logger.Info("watching for NetworkManager events")
	return w.loop(ctx, events)
}

func (w *Watcher) loop(ctx context.Context, events <-chan Event) error {
	for {
		if events == nil && w.supervisor.Pending() == 0 {
			w.logger.Info("signal streams closed and no scripts pending")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("shutting down", "active", w.tracker.Len(), "pending_scripts", w.supervisor.Pending())
			return nil

		case <-w.bus.Done():
			return ErrBusSessionLost

		case event, ok := <-events:
			if !ok {
				// A lost bus closes the streams too; report it as such.
				select {
				case <-w.bus.Done():
					return ErrBusSessionLost
				default:
				}
				events = nil
				continue
			}
			w.handle(ctx, event)

		case completion := <-w.supervisor.Completions():
			w.supervisor.Observe(completion)
			if w.observed != nil {
				w.observed(completion)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event Event) {
	switch event.Kind {
	case Up:
		w.connectionUp(ctx, event.Path)
	case Down:
		w.connectionDown(event.Path)
	}
}

// connectionUp resolves path and, on the first Up for it, records the
// entry and runs the up-script.
func (w *Watcher) connectionUp(ctx context.Context, path dbus.ObjectPath) {
	identity, err := w.resolver.Resolve(ctx, path)
	if err != nil {
		discard(w.logger, slog.LevelWarn, "dropping connection up event", err, "path", string(path))
		return
	}

	entry, inserted := w.tracker.RecordUp(path, identity, w.clock.Now())
	if !inserted {
		w.logger.Debug("connection already active",
			"path", string(path), "id", entry.Identity.ID, "uuid", entry.Identity.UUID)
		return
	}
	w.logger.Debug("connection active",
		"path", string(path), "id", identity.ID, "uuid", identity.UUID, "active", w.tracker.Len())

	w.dispatch(Up, entry)
}

// connectionDown forgets path and runs the down-script for the identity
// recorded at Up. Unknown paths are ignored.
func (w *Watcher) connectionDown(path dbus.ObjectPath) {
	entry, ok := w.tracker.TakeDown(path)
	if !ok {
		return
	}
	w.logger.Debug("connection inactive",
		"path", string(path), "id", entry.Identity.ID, "uuid", entry.Identity.UUID,
		"was_active_for", clock.Since(w.clock, entry.Since))

	w.dispatch(Down, entry)
}

func (w *Watcher) dispatch(action Kind, entry ActiveEntry) {
	child, err := w.dispatcher.Dispatch(action, entry.Identity)
	if err != nil {
		discard(w.logger, slog.LevelError, "script not started", err,
			"action", action.String(), "path", string(entry.Path))
		return
	}
	if child == nil {
		return
	}
	w.supervisor.Track(child)
}

// adopt processes connections that were already active before the
// watcher subscribed, as Up events.
func (w *Watcher) adopt(ctx context.Context) {
	variant, err := w.bus.ReadProperty(ctx, NetworkManagerDestination, NetworkManagerPath,
		NetworkManagerInterface, "ActiveConnections", w.propertyTimeout)
	if err != nil {
		discard(w.logger, slog.LevelWarn, "listing active connections", err)
		return
	}
	paths, ok := variant.Value().([]dbus.ObjectPath)
	if !ok {
		w.logger.Warn("listing active connections: unexpected signature",
			"signature", variant.Signature().String())
		return
	}

	w.logger.Info("adopting active connections", "count", len(paths))
	for _, path := range paths {
		if !underPrefix(path, ActiveConnectionPrefix) {
			continue
		}
		w.connectionUp(ctx, path)
	}
}

// teardown removes every subscription in tokens. Each removal is
// attempted even if an earlier one fails.
func (w *Watcher) teardown(tokens ...sysbus.Token) error {
	w.logger.Info("tearing down signal subscriptions")

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var errs []error
	for _, token := range tokens {
		if err := w.bus.Unsubscribe(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &UnsubscribeError{Err: errors.Join(errs...)}
}
