package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/flux/internal/architect"
	"github.com/julianstephens/flux/internal/config"
	"github.com/julianstephens/flux/internal/keyring"
	"github.com/julianstephens/flux/internal/llm"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/notifier"
	"github.com/julianstephens/flux/internal/runtime"
	"github.com/julianstephens/flux/internal/storage"
	"github.com/julianstephens/flux/internal/storage/postgres"
	"github.com/julianstephens/flux/internal/storage/sqlite"
	"github.com/julianstephens/flux/internal/tasks"
	"github.com/julianstephens/flux/internal/tools"
	"github.com/julianstephens/flux/internal/workflow"
)

// StorageKeyring selects the PostgreSQL connection string stored in the OS
// keyring.
const StorageKeyring = "keyring"

type Context struct {
	Config     *config.Config
	ConfigFile string
	Store      storage.Provider
	Out        io.Writer

	// Confirm asks the human a yes/no question.
	Confirm func(title, description string) (bool, error)
	// NewCompleter builds the completion service on the first architect run.
	NewCompleter func(ctx context.Context) (llm.Completer, error)

	svc *Services
}

func NewContext(cfg *config.Config, configFile string, store storage.Provider) *Context {
	return &Context{
		Config:     cfg,
		ConfigFile: configFile,
		Store:      store,
		Out:        os.Stdout,
		Confirm:    confirmPrompt,
		NewCompleter: func(ctx context.Context) (llm.Completer, error) {
			return llm.New(ctx, cfg.Completer())
		},
	}
}

// Services is the runtime stack shared by every command that touches State.
type Services struct {
	Metrics    *metrics.Metrics
	Runtime    *runtime.Runtime
	Reporter   *workflow.Reporter
	Architect  *LazyArchitect
	Dispatcher *tools.Dispatcher
	Tasks      *tasks.Scheduler
	Location   *time.Location

	notifier *notifier.Notifier
}

// Services builds the runtime stack on first use.
func (c *Context) Services() (*Services, error) {
	if c.svc != nil {
		return c.svc, nil
	}

	loc, err := c.Config.Location()
	if err != nil {
		return nil, err
	}

	svc := &Services{Metrics: metrics.New(), Location: loc}
	opts := []runtime.Option{runtime.WithMetrics(svc.Metrics)}
	if c.Config.NATS.URL != "" {
		n, err := notifier.Connect(c.Config.NATS.URL, c.Config.NATS.SubjectPrefix)
		if err != nil {
			logger.Warn("Event feed unavailable", "url", c.Config.NATS.URL, "error", err)
		} else {
			svc.notifier = n
			opts = append(opts, runtime.WithEventSink(n))
		}
	}

	svc.Runtime = runtime.New(c.Store, opts...)
	svc.Reporter = workflow.NewReporter(svc.Runtime, workflow.WithDismissAfter(c.Config.Workflow.DismissAfter))
	svc.Architect = &LazyArchitect{build: func(ctx context.Context) (*architect.Pipeline, error) {
		completer, err := c.NewCompleter(ctx)
		if err != nil {
			return nil, err
		}
		return architect.New(svc.Runtime, svc.Reporter, completer,
			architect.WithMetrics(svc.Metrics),
			architect.WithTimeout(c.Config.LLM.Timeout),
			architect.WithLayout(architect.Layout{
				Gap:             c.Config.Workflow.BlockGap,
				DefaultDuration: c.Config.Workflow.DefaultDuration,
				RoundTo:         c.Config.Workflow.RoundTo,
			}),
		), nil
	}}
	taskOpts := []tasks.Option{tasks.WithMetrics(svc.Metrics)}
	if svc.notifier != nil {
		taskOpts = append(taskOpts, tasks.WithRunner(svc.notifier))
	}
	svc.Tasks = tasks.New(taskOpts...)
	svc.Dispatcher = tools.New(svc.Runtime, svc.Architect,
		tools.WithMetrics(svc.Metrics),
		tools.WithLocation(loc),
		tools.WithTaskScheduler(svc.Tasks),
	)

	c.svc = svc
	return svc, nil
}

// Close waits for background decompositions, drops scheduled tasks, then
// stops the runtime and releases storage.
func (c *Context) Close() error {
	if svc := c.svc; svc != nil {
		svc.Architect.Wait()
		svc.Tasks.Close()
		svc.Reporter.Close()
		svc.Runtime.Close()
		if svc.notifier != nil {
			if err := svc.notifier.Close(); err != nil {
				logger.Warn("Failed to drain event feed", "error", err)
			}
		}
		c.svc = nil
	}
	return c.Store.Close()
}

func (c *Context) user() string {
	return c.Config.User
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

// LazyArchitect builds the decomposition pipeline on its first run so that
// commands which never decompose do not need an API key.
type LazyArchitect struct {
	build func(ctx context.Context) (*architect.Pipeline, error)

	mu       sync.Mutex
	pipeline *architect.Pipeline
}

func (a *LazyArchitect) Pipeline(ctx context.Context) (*architect.Pipeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pipeline != nil {
		return a.pipeline, nil
	}
	p, err := a.build(ctx)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return p, nil
}

func (a *LazyArchitect) Start(ctx context.Context, req architect.Request) (string, error) {
	p, err := a.Pipeline(ctx)
	if err != nil {
		return "", err
	}
	return p.Start(ctx, req)
}

// Wait blocks until background runs finish. It is a no-op if no run was
// ever started.
func (a *LazyArchitect) Wait() {
	a.mu.Lock()
	p := a.pipeline
	a.mu.Unlock()
	if p != nil {
		p.Wait()
	}
}

// OpenProvider picks the storage provider for a storage string: a
// PostgreSQL URL or DSN, "keyring", ":memory:", a .json file, or a SQLite
// path.
func OpenProvider(target string) (storage.Provider, error) {
	target = strings.TrimSpace(target)
	if target == StorageKeyring {
		connStr, err := keyring.GetConnectionString()
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, errors.New("no connection string found in keyring, run 'flux auth set-connection' first")
			}
			return nil, fmt.Errorf("failed to read connection string from keyring: %w", err)
		}
		return postgres.New(connStr), nil
	}

	switch {
	case target == "":
		return nil, errors.New("storage is required")
	case isPostgres(target):
		if _, err := postgres.ValidateConnString(target); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, errors.New("PostgreSQL connection strings with embedded credentials are not allowed, use .pgpass, PGPASSWORD or 'flux auth set-connection'")
			}
			return nil, err
		}
		return postgres.New(target), nil
	case target == storage.MemoryPath:
		return storage.NewMemoryStore(), nil
	case strings.HasSuffix(target, ".json"):
		return storage.NewJSONStore(config.ExpandHome(target)), nil
	default:
		return sqlite.NewStore(config.ExpandHome(target)), nil
	}
}

func isPostgres(target string) bool {
	return strings.HasPrefix(target, "postgres://") ||
		strings.HasPrefix(target, "postgresql://") ||
		strings.Contains(target, "host=")
}
