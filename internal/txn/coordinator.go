// internal/txn/coordinator.go
package txn

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/retry"
	"ghusers/internal/vcs"

	"github.com/oklog/ulid/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures a Coordinator.
type Options struct {
	BaseRef      string
	Path         string
	BranchPrefix string
	Policy       retry.Policy
	CallTimeout  time.Duration
	// Bootstrap treats a missing document file as an empty document instead
	// of failing with FileNotFound.
	Bootstrap  bool
	Logger     *zap.Logger
	OnProgress func(Progress)
}

// Result describes a committed transaction.
type Result struct {
	Transaction string
	Document    document.Document
	Attempts    int
	Branch      string
	// CleanupErr collects branch deletions that failed along the way. The
	// transaction itself committed.
	CleanupErr error
}

// Coordinator runs document mutations as optimistic transactions: branch
// off the base ref, rewrite the document on the branch, merge it back, and
// start over when another writer got there first.
type Coordinator struct {
	store  vcs.Store
	opts   Options
	names  *Namer
	logger *zap.Logger
}

func New(store vcs.Store, opts Options) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.BaseRef == "" {
		return nil, fmt.Errorf("base ref is required")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("document path is required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Coordinator{
		store:  store,
		opts:   opts,
		names:  NewNamer(opts.BranchPrefix),
		logger: opts.Logger.With(zap.String("base_ref", opts.BaseRef), zap.String("path", opts.Path)),
	}, nil
}

// Execute applies mutate to the document on the base ref. message becomes
// the commit message on the transaction branch.
//
// Write and merge conflicts and transient store failures are retried with
// backoff up to the policy's MaxAttempts; every other error, including one
// returned by mutate, aborts at once. Errors are always *errors.Error.
func (c *Coordinator) Execute(ctx context.Context, message string, mutate document.Mutation) (*Result, error) {
	id := strings.ToLower(ulid.Make().String())
	logger := c.logger.With(zap.String("transaction", id))
	ctrl := c.opts.Policy.Start()

	var cleanupErrs error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(errors.Canceled(err), attempt-1, cleanupErrs)
		}

		c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseIdle})
		logger.Debug("attempt started", zap.Int("attempt", attempt))

		doc, branch, cleanupErr, err := c.attempt(ctx, id, attempt, message, mutate)
		cleanupErrs = multierr.Append(cleanupErrs, cleanupErr)

		if err == nil {
			c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseCleanedUp, Branch: branch, Outcome: OutcomeSuccess, Err: cleanupErr})
			logger.Info("transaction committed",
				zap.Int("attempts", attempt),
				zap.String("branch", branch),
				zap.Int("users", len(doc.Users)),
			)
			if cleanupErrs != nil {
				logger.Warn("transaction branches left behind", zap.Error(cleanupErrs))
			}
			return &Result{
				Transaction: id,
				Document:    doc,
				Attempts:    attempt,
				Branch:      branch,
				CleanupErr:  cleanupErrs,
			}, nil
		}

		if ctx.Err() != nil {
			err = errors.Canceled(ctx.Err())
		}
		c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseFailed, Branch: branch, Err: err})

		if !errors.IsRetryable(err) {
			c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseCleanedUp, Branch: branch, Outcome: OutcomeAborted, Err: err})
			logger.Info("transaction aborted", zap.Int("attempt", attempt), zap.Error(err))
			return nil, c.fail(err, attempt, cleanupErrs)
		}

		delay, ok := ctrl.Next()
		if !ok {
			c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseCleanedUp, Branch: branch, Outcome: OutcomeAborted, Err: err})
			logger.Warn("transaction exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return nil, c.fail(errors.Exhausted(attempt, err), attempt, cleanupErrs)
		}

		c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseCleanedUp, Branch: branch, Outcome: OutcomeRetry, Err: err})
		c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseBackoff, Delay: delay})
		logger.Info("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("reason", string(errors.TypeOf(err))),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, c.fail(errors.Canceled(ctx.Err()), attempt, cleanupErrs)
		case <-timer.C:
		}
	}
}

// attempt runs one pass of the protocol. Once the branch may exist it is
// deleted on every return path, even when ctx has been canceled.
func (c *Coordinator) attempt(ctx context.Context, id string, attempt int, message string, mutate document.Mutation) (doc document.Document, branch string, cleanupErr error, err error) {
	var baseToken string
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		baseToken, err = c.store.GetRef(ctx, c.opts.BaseRef)
		return err
	})
	if err != nil {
		return doc, "", nil, err
	}

	branch = c.names.Next()
	err = c.call(ctx, func(ctx context.Context) error {
		return c.store.CreateRef(ctx, branch, baseToken)
	})
	if errors.Is(err, errors.ErrorTypeRefConflict) {
		// Not ours to delete.
		return doc, branch, nil, err
	}
	defer func() {
		cleanupErr = c.cleanup(ctx, branch)
	}()
	if err != nil {
		return doc, branch, nil, err
	}
	c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseBranchCreated, Branch: branch})

	var file *vcs.File
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		file, err = c.store.ReadFile(ctx, c.opts.Path, branch)
		return err
	})

	var current document.Document
	fileToken := ""
	switch {
	case err == nil:
		current, err = document.Decode(file.Content)
		if err != nil {
			return doc, branch, nil, err
		}
		fileToken = file.Token
	case c.opts.Bootstrap && errors.Is(err, errors.ErrorTypeFileNotFound):
		current = document.Document{Users: []document.User{}}
	default:
		return doc, branch, nil, err
	}
	c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseDocumentRead, Branch: branch})

	next, err := mutate(current)
	if err != nil {
		return doc, branch, nil, mutationError(err)
	}
	c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseMutated, Branch: branch})

	payload, err := document.Encode(next)
	if err != nil {
		return doc, branch, nil, err
	}
	err = c.call(ctx, func(ctx context.Context) error {
		return c.store.WriteFile(ctx, vcs.WriteRequest{
			Path:          c.opts.Path,
			Content:       payload,
			ExpectedToken: fileToken,
			Ref:           branch,
			Message:       message,
		})
	})
	if err != nil {
		return doc, branch, nil, err
	}
	c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseWritten, Branch: branch})

	err = c.call(ctx, func(ctx context.Context) error {
		return c.store.MergeRef(ctx, c.opts.BaseRef, branch, fmt.Sprintf("merge %s: %s", branch, message))
	})
	if err != nil {
		return doc, branch, nil, err
	}
	c.emit(Progress{Transaction: id, Attempt: attempt, Phase: PhaseMerged, Branch: branch})

	return next, branch, nil, nil
}

// call runs one store operation under the per-call timeout.
func (c *Coordinator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.Canceled(ctx.Err())
	}

	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient("store call timed out", err)
	}
	return errors.Internal("store call failed", err)
}

// cleanup deletes branch on a context that survives the caller's
// cancellation, bounded by the call timeout.
func (c *Coordinator) cleanup(ctx context.Context, branch string) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
	defer cancel()

	if err := c.store.DeleteRef(cleanupCtx, branch); err != nil {
		c.logger.Warn("branch cleanup failed", zap.String("branch", branch), zap.Error(err))
		return fmt.Errorf("deleting branch %s: %w", branch, err)
	}
	return nil
}

func (c *Coordinator) emit(p Progress) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
}

// fail stamps the attempt count and cleanup failures onto err.
func (c *Coordinator) fail(err error, attempt int, cleanupErrs error) error {
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		typed = errors.Internal("transaction failed", err)
	}

	out := *typed
	if out.Attempt == 0 {
		out.Attempt = attempt
	}
	out.Cleanup = cleanupErrs
	return &out
}

func mutationError(err error) error {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return err
	}
	return errors.ValidationError(err.Error(), nil)
}
