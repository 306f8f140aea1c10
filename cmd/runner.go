package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/queue"
	"github.com/desertthunder/subsync/internal/repositories"
	"github.com/desertthunder/subsync/internal/services"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/statestore"
	"github.com/desertthunder/subsync/internal/syncjob"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	// overrides for tests; when nil, openDeps builds the real thing
	store statestore.StateStore
	q     queue.Queue
	db    *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Store      statestore.StateStore
	Queue      queue.Queue
	DB         *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		q:          opts.Queue,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, workerCommand, syncCommand, dlqCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// deps is the assembled service graph for one command invocation.
type deps struct {
	db        *sql.DB
	store     statestore.StateStore
	q         queue.Queue
	subs      *repositories.SubscriptionRepository
	conns     *repositories.ConnectionRepository
	pollers   *services.PollerSet
	tracker   *syncjob.Tracker
	admission *syncjob.Service
	consumer  *syncjob.Consumer
	dlq       *syncjob.DLQConsumer

	closers []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// reloadConfig swaps in the config at path when it exists. A missing or
// unreadable file leaves the current config in place.
func (r *Runner) reloadConfig(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, keeping current", "path", path, "error", err)
		return
	}
	r.config = config
}

// openDeps builds the full service graph from the current config. Test
// overrides on the Runner take precedence over config-driven construction.
func (r *Runner) openDeps() (*deps, error) {
	d := &deps{}

	d.db = r.db
	if d.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		d.db = db
		d.closers = append(d.closers, db.Close)
	}

	d.store = r.store
	if d.store == nil {
		store, err := statestore.OpenBadgerStore(r.config.StateStore.Path, r.config.StateStore.InMemory)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		d.store = store
		d.closers = append(d.closers, store.Close)
	}

	d.q = r.q
	if d.q == nil {
		if r.config.Queue.Enabled {
			d.q = queue.NewMemoryQueue(queue.Options{
				BatchSize:   r.config.Queue.BatchSize,
				Linger:      time.Duration(r.config.Queue.LingerMs) * time.Millisecond,
				MaxReceives: r.config.Queue.MaxReceives,
			}, r.logger)
		} else {
			d.q = queue.Disabled{}
		}
		d.closers = append(d.closers, d.q.Close)
	}

	d.subs = repositories.NewSubscriptionRepository(d.db)
	d.conns = repositories.NewConnectionRepository(d.db)
	d.pollers = services.NewPollerSet(
		services.NewYouTubePoller(r.config.Providers.YouTubeBaseURL, r.httpClient),
		services.NewSpotifyPoller(r.config.Providers.SpotifyBaseURL, r.httpClient),
	)

	d.tracker = syncjob.NewTracker(d.store, r.logger, r.config.JobTTL())
	d.admission = syncjob.NewService(d.tracker, d.store, d.q, d.subs, d.conns, d.pollers, syncjob.Options{
		Cooldown:  r.config.Cooldown(),
		ActiveTTL: r.config.ActiveTTL(),
		PollRate:  r.config.Sync.PollRatePerSecond,
	}, r.logger)
	d.consumer = syncjob.NewConsumer(d.tracker, d.subs, d.conns, d.pollers, r.logger)
	d.dlq = syncjob.NewDLQConsumer(d.store, syncjob.DLQOptions{
		Environment: r.config.Environment,
		TTL:         r.config.DLQTTL(),
		IndexCap:    r.config.DLQ.IndexCap,
	}, r.logger)

	return d, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
