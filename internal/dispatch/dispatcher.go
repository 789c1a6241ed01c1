package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/featureflags"
	"postpilot/internal/gateway"
	"postpilot/internal/middleware"
	"postpilot/internal/models"
	"postpilot/internal/notifications"
	"postpilot/internal/observability"
	"postpilot/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBatchSize bounds how many posts one sweep attempts.
	DefaultBatchSize = 10

	// TriggerManual labels attempts started from the publish endpoint.
	TriggerManual = "manual"

	// StatusSkipped is reported for posts another sweep or user action got to first.
	StatusSkipped = "skipped"
	// StatusError is reported when the attempt's outcome could not be saved.
	StatusError = "error"
)

var (
	// ErrPostBusy means another attempt currently holds the post's claim.
	ErrPostBusy = errors.New("post is already being delivered")
	// ErrPostChanged means the post left its expected status during the attempt.
	ErrPostChanged = errors.New("post changed while it was being delivered")

	pausedReason = "dispatch is paused for this account"
)

// StatusNotifier receives settled post states.
type StatusNotifier interface {
	PublishPostStatus(ctx context.Context, userID string, event notifications.PostStatusEvent) error
}

// FlagSource evaluates runtime feature flags.
type FlagSource interface {
	Enabled(name, subject string) bool
}

// PostResult is one entry of a sweep report.
type PostResult struct {
	PostID     string `json:"postId"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Message   string       `json:"message"`
	Processed int          `json:"processed"`
	Success   int          `json:"success"`
	Failed    int          `json:"failed"`
	Results   []PostResult `json:"results"`
}

func (r *SweepReport) add(result PostResult, tally Tally) {
	r.Processed++
	switch tally {
	case TallySuccess:
		r.Success++
	case TallyFailure:
		r.Failed++
	}
	r.Results = append(r.Results, result)
}

// Dispatcher delivers due posts one at a time.
type Dispatcher struct {
	posts    repository.PostRepository
	accounts repository.AccountRepository
	attempts repository.AttemptRepository
	poster   gateway.Poster

	policy    Policy
	batchSize int
	pacer     Pacer
	locker    Locker
	now       func() time.Time
	notifier  StatusNotifier
	flags     FlagSource
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBatchSize bounds how many posts one sweep attempts.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithCeiling sets the retry ceiling.
func WithCeiling(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.policy.Ceiling = n
		}
	}
}

// WithPacer sets the delay between consecutive posts.
func WithPacer(p Pacer) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.pacer = p
		}
	}
}

// WithLocker sets how posts are claimed.
func WithLocker(l Locker) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.locker = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithNotifier publishes settled post states.
func WithNotifier(n StatusNotifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithFlags enables the dispatch_paused switch.
func WithFlags(f FlagSource) Option {
	return func(d *Dispatcher) { d.flags = f }
}

// WithLogger replaces the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher wires a dispatcher. Defaults: ceiling 3, batch 10, no delay, in-process claims.
func NewDispatcher(
	posts repository.PostRepository,
	accounts repository.AccountRepository,
	attempts repository.AttemptRepository,
	poster gateway.Poster,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		posts:     posts,
		accounts:  accounts,
		attempts:  attempts,
		poster:    poster,
		policy:    Policy{Ceiling: DefaultCeiling},
		batchSize: DefaultBatchSize,
		pacer:     NoPacer{},
		locker:    NewMemoryLocker(DefaultLockTTL),
		now:       time.Now,
		logger:    middleware.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ceiling is the configured retry ceiling.
func (d *Dispatcher) Ceiling() int { return d.policy.ceiling() }

// Configured reports whether the gateway can be called at all.
func (d *Dispatcher) Configured() bool { return d.poster != nil && d.poster.Configured() }

// RunSweep attempts every due post once. Only rejected triggers, a missing gateway
// key and selection failures are returned as errors; everything that goes wrong
// for a single post is reported in the post's result entry.
func (d *Dispatcher) RunSweep(ctx context.Context, identity models.TriggerIdentity) (*SweepReport, error) {
	if err := identity.Err(); err != nil {
		observability.SweepsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !d.Configured() {
		observability.SweepsTotal.WithLabelValues("config_error").Inc()
		return nil, models.NewConfigurationError("posting gateway API key is not configured")
	}

	ctx = observability.WithSweepID(ctx, uuid.NewString())
	ctx, span := observability.Tracer.Start(ctx, "dispatch.sweep",
		trace.WithAttributes(attribute.String("dispatch.trigger", identity.Label())))
	defer span.End()

	start := time.Now()
	defer func() { observability.SweepDuration.Observe(time.Since(start).Seconds()) }()

	report := &SweepReport{Results: []PostResult{}}

	if d.flags != nil && d.flags.Enabled(featureflags.DispatchPaused, "") {
		d.logger.WarnContext(ctx, "dispatch sweep skipped, dispatch is paused")
		observability.SweepsTotal.WithLabelValues("paused").Inc()
		report.Message = "Dispatch is paused"
		return report, nil
	}

	now := d.now()
	posts, err := NewSelector(d.posts, d.policy.ceiling(), d.batchSize).Due(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		observability.SweepsTotal.WithLabelValues("error").Inc()
		d.logger.ErrorContext(ctx, "dispatch sweep could not select posts", slog.String("error", err.Error()))
		return nil, models.NewInternalError(err)
	}

	d.logger.InfoContext(ctx, "dispatch sweep started",
		slog.String("trigger", identity.Label()),
		slog.Int("due", len(posts)),
	)

	if len(posts) == 0 {
		report.Message = "No posts to process"
		observability.SweepsTotal.WithLabelValues("empty").Inc()
		return report, nil
	}

	for i, post := range posts {
		if i > 0 {
			if err := d.pacer.Wait(ctx); err != nil {
				d.logger.WarnContext(ctx, "dispatch sweep interrupted",
					slog.Int("remaining", len(posts)-i),
					slog.String("error", err.Error()))
				break
			}
		}

		if d.flags != nil && d.flags.Enabled(featureflags.DispatchPaused, post.UserID) {
			report.add(PostResult{PostID: post.ID, Status: StatusSkipped, Reason: pausedReason}, TallyNone)
			continue
		}

		result, tally, err := d.process(ctx, post, nil, identity.Label())
		if err != nil {
			d.logger.WarnContext(ctx, "post attempt not settled",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()))
		}
		report.add(result, tally)
	}

	report.Message = fmt.Sprintf("Processed %d posts", report.Processed)
	span.SetAttributes(
		attribute.Int("dispatch.processed", report.Processed),
		attribute.Int("dispatch.success", report.Success),
		attribute.Int("dispatch.failed", report.Failed),
	)
	observability.SweepsTotal.WithLabelValues("completed").Inc()
	d.logger.InfoContext(ctx, "dispatch sweep finished",
		slog.Int("processed", report.Processed),
		slog.Int("success", report.Success),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// Deliver attempts a single post immediately, or hands it to the gateway for
// publishing at scheduleDate when one is given. Gateway failures are part of the
// returned result; the error is set only when the outcome could not be applied.
func (d *Dispatcher) Deliver(ctx context.Context, post *models.Post, scheduleDate *time.Time) (PostResult, error) {
	if !d.Configured() {
		return PostResult{}, models.NewConfigurationError("posting gateway API key is not configured")
	}
	result, _, err := d.process(ctx, post, scheduleDate, TriggerManual)
	return result, err
}

func (d *Dispatcher) process(
	ctx context.Context, post *models.Post, scheduleDate *time.Time, trigger string,
) (result PostResult, tally Tally, err error) {
	ctx, span := observability.Tracer.Start(ctx, "dispatch.attempt", trace.WithAttributes(
		attribute.String("post.id", post.ID),
		attribute.String("dispatch.trigger", trigger),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic while dispatching post",
				slog.String("post_id", post.ID),
				slog.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			result = PostResult{PostID: post.ID, Status: StatusError, Reason: fmt.Sprintf("unexpected error: %v", r)}
			tally = TallyFailure
			err = nil
		}
	}()

	unlock, ok, lockErr := d.locker.TryLock(ctx, LockKey(post.ID))
	if lockErr != nil {
		return PostResult{PostID: post.ID, Status: StatusSkipped, Reason: "could not claim post"}, TallyNone,
			fmt.Errorf("claim post %s: %w", post.ID, lockErr)
	}
	if !ok {
		return PostResult{PostID: post.ID, Status: StatusSkipped, Reason: ErrPostBusy.Error()}, TallyNone, ErrPostBusy
	}
	defer unlock()

	// The selection snapshot may be stale: another sweep or a manual publish
	// can have settled the post between selection and the claim.
	current, reloadErr := d.posts.GetByID(ctx, post.ID)
	if reloadErr != nil {
		var appErr *models.AppError
		if errors.As(reloadErr, &appErr) && appErr.Code == models.CodeNotFound {
			return PostResult{PostID: post.ID, Status: StatusSkipped, Reason: ErrPostChanged.Error()}, TallyNone, ErrPostChanged
		}
		span.RecordError(reloadErr)
		return PostResult{PostID: post.ID, Status: StatusError, Reason: "could not reload post"}, TallyFailure,
			fmt.Errorf("reload post %s: %w", post.ID, reloadErr)
	}
	manual := trigger == TriggerManual
	if !sameAttemptState(post, current) || (!manual && !current.IsDue(d.now(), d.policy.ceiling())) {
		return PostResult{PostID: post.ID, Status: StatusSkipped, Reason: ErrPostChanged.Error()}, TallyNone, ErrPostChanged
	}
	post = current

	started := time.Now()
	out := d.outcome(ctx, post, scheduleDate)
	out.Manual = manual
	tr := d.policy.Apply(post, out, d.now())

	result = PostResult{PostID: post.ID, Status: string(tr.Status), Reason: tr.Reason, ExternalID: out.Result.ID}
	tally = tr.Tally

	if len(tr.Changes) > 0 {
		updated, applyErr := d.posts.ApplyTransition(ctx, post.ID, post.Status, tr.Changes)
		switch {
		case applyErr != nil:
			span.RecordError(applyErr)
			result = PostResult{PostID: post.ID, Status: StatusError, Reason: "could not save delivery outcome"}
			tally = TallyFailure
			err = fmt.Errorf("save outcome of post %s: %w", post.ID, applyErr)
		case !updated:
			result = PostResult{PostID: post.ID, Status: StatusSkipped, Reason: ErrPostChanged.Error()}
			tally = TallyNone
			tr.Record = models.OutcomeSkipped
			err = ErrPostChanged
		}
	}

	d.recordAttempt(ctx, post, tr, out.Result, trigger, time.Since(started))
	if err == nil {
		d.notify(ctx, post, tr, out.Result)
	}

	observability.DeliveryAttempts.WithLabelValues(string(tr.Record), trigger).Inc()
	span.SetAttributes(attribute.String("dispatch.outcome", string(tr.Record)))
	d.logger.InfoContext(ctx, "post attempt",
		slog.String("post_id", post.ID),
		slog.String("user_id", post.UserID),
		slog.String("outcome", string(tr.Record)),
		slog.String("status", result.Status),
		slog.String("reason", result.Reason),
	)
	return result, tally, err
}

// sameAttemptState reports whether nothing that decides an attempt changed
// between two reads of a post.
func sameAttemptState(before, after *models.Post) bool {
	return before.Status == after.Status &&
		before.RetryCount == after.RetryCount &&
		models.Deref(before.GatewayRef) == models.Deref(after.GatewayRef)
}

// outcome resolves the account and calls the gateway. Panics become ordinary failures.
func (d *Dispatcher) outcome(ctx context.Context, post *models.Post, scheduleDate *time.Time) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic during post delivery",
				slog.String("post_id", post.ID),
				slog.Any("panic", r))
			out = Outcome{Result: gateway.Failure("unexpected error: %v", r)}
		}
	}()

	// Already handed to the gateway with a schedule date; it publishes on its own.
	if scheduleDate == nil && post.GatewayRef != nil && *post.GatewayRef != "" {
		return Outcome{Result: gateway.Success(*post.GatewayRef)}
	}

	account, err := d.accounts.GetByUserID(ctx, post.UserID)
	if err != nil {
		return Outcome{Result: gateway.Failure("could not load posting account: %v", err)}
	}
	if !account.Usable() {
		return Outcome{Result: gateway.Failure(MissingAccountMessage), NoAccount: true}
	}

	sub := gateway.Submission{
		ProfileKey:   account.ProfileKey,
		Content:      post.Content,
		Hashtags:     []string(post.Hashtags),
		ScheduleDate: scheduleDate,
	}
	if post.MediaURL != nil {
		sub.MediaURL = *post.MediaURL
	}
	return Outcome{Result: d.poster.Submit(ctx, sub), ScheduleDate: scheduleDate}
}

func (d *Dispatcher) recordAttempt(
	ctx context.Context, post *models.Post, tr Transition, res gateway.Result, trigger string, took time.Duration,
) {
	if d.attempts == nil {
		return
	}
	attempt := &models.DeliveryAttempt{
		PostID:        post.ID,
		AttemptNumber: post.RetryCount + 1,
		Outcome:       tr.Record,
		ErrorMessage:  models.StringPtr(tr.Reason),
		ExternalID:    models.StringPtr(res.ID),
		DurationMS:    took.Milliseconds(),
		Trigger:       trigger,
	}
	if err := d.attempts.Record(ctx, attempt); err != nil {
		d.logger.WarnContext(ctx, "could not record delivery attempt",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) notify(ctx context.Context, post *models.Post, tr Transition, res gateway.Result) {
	if d.notifier == nil {
		return
	}

	var eventType string
	switch {
	case tr.Record == models.OutcomePosted:
		eventType = notifications.EventPostPublished
	case tr.Record == models.OutcomeScheduled:
		eventType = notifications.EventPostScheduled
	case tr.Status == models.PostStatusFailed:
		eventType = notifications.EventPostFailed
	default:
		return
	}

	retries := post.RetryCount
	if n, ok := tr.Changes["retry_count"].(int); ok {
		retries = n
	}
	event := notifications.PostStatusEvent{
		Type:       eventType,
		PostID:     post.ID,
		Status:     string(tr.Status),
		ExternalID: res.ID,
		Error:      tr.Reason,
		RetryCount: retries,
		At:         d.now().UTC(),
	}
	if err := d.notifier.PublishPostStatus(ctx, post.UserID, event); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		d.logger.WarnContext(ctx, "could not publish post status",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()))
	}
}
