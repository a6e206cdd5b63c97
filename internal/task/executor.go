package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const defaultEmailDelayUnits = 3

// ProgressFunc receives one observation per elapsed time unit
type ProgressFunc func(done, total int)

// ExecutorConfig tunes the simulated work
type ExecutorConfig struct {
	// TimeUnit is the length of one simulated unit of work (default 1s)
	TimeUnit time.Duration
	// EmailDelayUnits is how long send_email takes, in units (default 3)
	EmailDelayUnits int
}

// Executor runs job bodies. It knows nothing about brokers or result
// backends; the only side effects are elapsed time and log output.
type Executor struct {
	unit       time.Duration
	emailDelay int
	logger     *slog.Logger
}

// NewExecutor creates a new Executor
func NewExecutor(cfg ExecutorConfig, logger *slog.Logger) *Executor {
	unit := cfg.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	emailDelay := cfg.EmailDelayUnits
	if emailDelay <= 0 {
		emailDelay = defaultEmailDelayUnits
	}
	return &Executor{
		unit:       unit,
		emailDelay: emailDelay,
		logger:     logger,
	}
}

// Execute decodes the arguments for the named job and runs it
func (e *Executor) Execute(ctx context.Context, name Name, raw json.RawMessage, progress ProgressFunc) (string, error) {
	switch name {
	case NameSendEmail:
		args, err := decodeArgs[SendEmailArgs](raw)
		if err != nil {
			return "", err
		}
		return e.SendEmail(ctx, args)

	case NameLongRunningTask:
		args, err := decodeArgs[LongRunningTaskArgs](raw)
		if err != nil {
			return "", err
		}
		return e.LongRunningTask(ctx, args, progress)

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
}

// SendEmail simulates delivering an email. No message leaves the process.
func (e *Executor) SendEmail(ctx context.Context, args SendEmailArgs) (string, error) {
	if err := args.Validate(); err != nil {
		return "", err
	}

	e.logger.Info("Sending email",
		slog.String("to", args.To),
		slog.String("subject", args.Subject),
		slog.String("message", args.Message),
	)

	if err := e.wait(ctx, e.emailDelay); err != nil {
		return "", fmt.Errorf("send email to %s interrupted: %w", args.To, err)
	}

	return fmt.Sprintf("Email sent to %s successfully!", args.To), nil
}

// LongRunningTask simulates work lasting args.Duration units and reports
// progress after each one.
func (e *Executor) LongRunningTask(ctx context.Context, args LongRunningTaskArgs, progress ProgressFunc) (string, error) {
	if err := args.Validate(); err != nil {
		return "", err
	}

	e.logger.Info("Starting task",
		slog.String("task_name", args.Name),
		slog.Int("duration", args.Duration),
	)

	for i := 1; i <= args.Duration; i++ {
		if err := e.wait(ctx, 1); err != nil {
			return "", fmt.Errorf("task %s interrupted at %d/%d: %w", args.Name, i-1, args.Duration, err)
		}

		e.logger.Info("Task progress",
			slog.String("task_name", args.Name),
			slog.Int("done", i),
			slog.Int("total", args.Duration),
		)
		if progress != nil {
			progress(i, args.Duration)
		}
	}

	e.logger.Info("Task completed",
		slog.String("task_name", args.Name),
	)

	return fmt.Sprintf("Task %s completed in %d seconds", args.Name, args.Duration), nil
}

func (e *Executor) wait(ctx context.Context, units int) error {
	if units <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(units) * e.unit)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
