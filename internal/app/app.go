// Package app implements the application layer for anvil.
package app

import (
	"context"
	"os"

	"go.trai.ch/anvil/internal/adapters/db"
	"go.trai.ch/anvil/internal/buildsystem"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Options is the resolved invocation surface of a build.
type Options struct {
	// Chdir switches to this directory before anything else.
	Chdir string

	// File is the build description path.
	File string

	// DBPath locates the persistent database; NoDB disables persistence.
	DBPath string
	NoDB   bool

	// Serial forces one execution lane; otherwise Jobs selects the lane
	// count (0 = default).
	Serial bool
	Jobs   int

	Verbose   bool
	TracePath string

	// Target is the target to build.
	Target string

	// ExtraArgs holds the arguments given after "--". Run does not use
	// them.
	ExtraArgs []string
}

// App wires a build invocation together.
type App struct {
	logger    ports.Logger
	telemetry ports.Telemetry
}

// New creates a new App instance.
func New(logger ports.Logger, telemetry ports.Telemetry) *App {
	return &App{logger: logger, telemetry: telemetry}
}

// Run executes the build described by opts. It returns an error when the
// description fails to load, the build aborts, or any command fails.
func (a *App) Run(ctx context.Context, opts Options) error {
	if opts.Chdir != "" {
		if err := os.Chdir(opts.Chdir); err != nil {
			return zerr.Wrap(err, "failed to change directory")
		}
	}
	if opts.Target == "" {
		return zerr.New("no target specified")
	}

	lanes := opts.Jobs
	if opts.Serial {
		lanes = 1
	}

	delegate := &buildDelegate{ctx: ctx, logger: a.logger}
	system := buildsystem.New(buildsystem.Config{
		Delegate:  delegate,
		Logger:    a.logger,
		Telemetry: a.telemetry,
		Lanes:     lanes,
	})
	delegate.system = system

	if !opts.NoDB {
		database, err := db.OpenBolt(opts.DBPath)
		if err != nil {
			return err
		}
		defer database.Close() //nolint:errcheck // results were flushed at build completion
		if err := system.AttachDB(database); err != nil {
			return err
		}
	}

	if opts.TracePath != "" {
		if err := system.EnableTracing(opts.TracePath); err != nil {
			return err
		}
		defer system.Engine().CloseTracing() //nolint:errcheck // best effort flush
	}

	if err := system.LoadDescription(opts.File); err != nil {
		return err
	}

	err := system.Build(ctx, opts.Target)
	if opts.Verbose {
		a.logger.Info("build finished: " + itoa(system.NumErrors()) +
			" error(s), " + itoa(system.NumFailedCommands()) + " failed command(s)")
	}
	return err
}

func itoa(v int) string {
	if v < 0 {
		return "-" + itoa(-v)
	}
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// buildDelegate reports diagnostics and cancels the build after the first
// command failure.
type buildDelegate struct {
	ctx    context.Context
	logger ports.Logger
	system *buildsystem.System
}

var _ buildsystem.Delegate = (*buildDelegate)(nil)

func (d *buildDelegate) Error(path, message string) {
	if path != "" {
		message = path + ": " + message
	}
	d.logger.Error(zerr.New(message))
}

func (d *buildDelegate) HadCommandFailure() {
	// One failure stops scheduling further commands; in-flight work
	// drains cooperatively.
	if d.system != nil {
		d.system.Cancel()
	}
}

func (d *buildDelegate) IsCancelled() bool {
	return d.ctx.Err() != nil
}
