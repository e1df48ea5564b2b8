package injectable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/security"
)

// Status is the outcome of one injectable.
type Status string

const (
	StatusWritten            Status = "written"
	StatusDelegated          Status = "delegated"
	StatusInvalid            Status = "invalid"
	StatusVerificationFailed Status = "verification_failed"
	StatusDecryptionFailed   Status = "decryption_failed"
	StatusWriteFailed        Status = "write_failed"
	StatusCanceled           Status = "canceled"
)

// Options configures a Pipeline.
type Options struct {
	Secret      string
	Destination string // empty means os.TempDir()
	Verify      bool
	// Concurrency above 1 processes items in parallel; results stay in
	// arrival order either way.
	Concurrency int
	// Processor replaces DefaultFileWriter when set.
	Processor Processor
	// OnResult observes each finished item.
	OnResult func(context.Context, ItemResult)
}

// ItemResult records what happened to one injectable.
type ItemResult struct {
	ID     string `json:"id"`
	Target string `json:"target,omitempty"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// OK reports whether the item reached its processor successfully.
func (r ItemResult) OK() bool {
	return r.Status == StatusWritten || r.Status == StatusDelegated
}

// Report aggregates a batch. It never aborts on a single bad item.
type Report struct {
	Results []ItemResult `json:"results"`
}

// Succeeded counts items that were written or delegated.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the items that did not succeed.
func (r *Report) Failed() []ItemResult {
	var failed []ItemResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins every per-item error, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Pipeline verifies, decrypts and materializes injectables.
type Pipeline struct {
	opts     Options
	logger   *slog.Logger
	validate *validator.Validate
}

// NewPipeline creates a pipeline
func NewPipeline(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Processor == nil {
		opts.Processor = DefaultFileWriter
	}
	if opts.Destination == "" {
		opts.Destination = os.TempDir()
	}
	return &Pipeline{
		opts:     opts,
		logger:   logger.With(slog.String("component", "injectable_pipeline")),
		validate: validator.New(),
	}
}

// Process handles items in arrival order, or concurrently when configured.
// Each item fails on its own; the returned report is never nil.
func (p *Pipeline) Process(ctx context.Context, items []Injectable) *Report {
	report := &Report{Results: make([]ItemResult, len(items))}

	if p.opts.Concurrency <= 1 {
		for i, item := range items {
			report.Results[i] = p.processOne(ctx, item)
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(p.opts.Concurrency)
		for i, item := range items {
			g.Go(func() error {
				report.Results[i] = p.processOne(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
	}

	p.logger.InfoContext(ctx, "injectables processed",
		slog.Int("total", len(items)),
		slog.Int("succeeded", report.Succeeded()),
		slog.Int("failed", len(items)-report.Succeeded()))

	return report
}

func (p *Pipeline) processOne(ctx context.Context, item Injectable) (res ItemResult) {
	res = ItemResult{ID: string(item.ID)}
	defer func() {
		p.logResult(ctx, res)
		if p.opts.OnResult != nil {
			p.opts.OnResult(ctx, res)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Status, res.Err = StatusCanceled, err
		return res
	}

	if err := p.validate.Struct(item); err != nil {
		res.Status = StatusInvalid
		res.Err = fmt.Errorf("injectable %q: %w: %v", item.ID, apperrors.ErrInvalidInjectable, err)
		return res
	}

	if p.opts.Verify && !security.Verify(item.Content, item.Signature, p.opts.Secret) {
		res.Status = StatusVerificationFailed
		res.Err = &apperrors.VerificationError{InjectableID: string(item.ID)}
		return res
	}

	// Decryption failures are fatal for the item even when verification is off.
	plaintext, err := security.Decrypt(item.Content, p.opts.Secret)
	if err != nil {
		res.Status = StatusDecryptionFailed
		res.Err = &apperrors.DecryptionError{InjectableID: string(item.ID), Err: err}
		return res
	}

	target, err := p.resolveTarget(item)
	if err != nil {
		res.Status = StatusInvalid
		res.Err = err
		return res
	}
	res.Target = target

	if err := p.opts.Processor.Process(ctx, item, plaintext, target); err != nil {
		res.Status = StatusWriteFailed
		res.Err = fmt.Errorf("injectable %q: %w", item.ID, err)
		return res
	}

	if _, isDefault := p.opts.Processor.(FileWriter); isDefault {
		res.Status = StatusWritten
	} else {
		res.Status = StatusDelegated
	}
	return res
}

// resolveTarget joins the item's relative target under the destination.
// A local target (filepath.IsLocal) cannot climb out of the destination.
func (p *Pipeline) resolveTarget(item Injectable) (string, error) {
	rel := filepath.Clean(item.RelativeTarget())
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("injectable %q target %q: %w", item.ID, rel, apperrors.ErrTargetOutsideRoot)
	}
	return filepath.Join(p.opts.Destination, rel), nil
}

func (p *Pipeline) logResult(ctx context.Context, res ItemResult) {
	if res.OK() {
		p.logger.DebugContext(ctx, "injectable materialized",
			slog.String("injectable_id", res.ID),
			slog.String("target", res.Target),
			slog.String("status", string(res.Status)))
		return
	}
	p.logger.WarnContext(ctx, "injectable skipped",
		slog.String("injectable_id", res.ID),
		slog.String("status", string(res.Status)),
		slog.String("error", res.Err.Error()))
}
