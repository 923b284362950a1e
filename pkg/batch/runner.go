package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/whatdidyoudo/pkg/changeset"
	"github.com/Sternrassler/whatdidyoudo/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Aggregator computes one user's changes.
type Aggregator interface {
	Aggregate(ctx context.Context, user string, w changeset.Window) (*changeset.Result, error)
}

// Result is the merged outcome of a batch.
type Result struct {
	Window changeset.Window `json:"window"`

	// Changes maps each user with a result to its per-editor tallies.
	Changes map[string]changeset.Editors `json:"changes"`

	// ChangesetIDs concatenates the users' changeset IDs in user order.
	ChangesetIDs []string `json:"changeset_ids"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Runner aggregates users one after another.
type Runner struct {
	aggregator Aggregator
	limiter    ratelimit.Limiter
	rate       ratelimit.Rate
	logger     zerolog.Logger
}

// NewRunner creates a batch runner. A nil limiter disables rate limiting.
func NewRunner(aggregator Aggregator, limiter ratelimit.Limiter, rate ratelimit.Rate, logger zerolog.Logger) *Runner {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	return &Runner{
		aggregator: aggregator,
		limiter:    limiter,
		rate:       rate,
		logger:     logger,
	}
}

// AggregateAll aggregates every user in users for clientKey.
//
// Each user consumes one request from clientKey's rate limit before its
// aggregation starts. A refused or failed user is reported in Errors and
// processing continues with the next user. Pagination warnings are reported
// in Warnings prefixed with the user.
func (r *Runner) AggregateAll(ctx context.Context, clientKey string, users []string, w changeset.Window) *Result {
	startTime := time.Now()

	result := &Result{
		Window:       w,
		Changes:      make(map[string]changeset.Editors),
		ChangesetIDs: []string{},
		Errors:       []string{},
		Warnings:     []string{},
	}

	for _, user := range users {
		batchUsersTotal.Inc()

		if err := ratelimit.Check(ctx, r.limiter, r.rate, clientKey); err != nil {
			result.Errors = append(result.Errors, r.limitMessage(user, clientKey, err))
			continue
		}

		userResult, err := r.aggregator.Aggregate(ctx, user, w)
		if err != nil {
			reason := "aggregation"
			if ctx.Err() != nil {
				reason = "cancelled"
			}
			batchUserErrorsTotal.WithLabelValues(reason).Inc()
			r.logger.Error().
				Err(err).
				Str("user", user).
				Str("window", w.String()).
				Msg("Failed to aggregate changes")
			result.Errors = append(result.Errors,
				fmt.Sprintf("Can't determine changes for user %s for %s.", user, w))
			continue
		}

		result.Changes[user] = userResult.Editors
		result.ChangesetIDs = append(result.ChangesetIDs, userResult.ChangesetIDs...)
		if userResult.Message != "" {
			result.Warnings = append(result.Warnings, user+": "+userResult.Message)
		}
	}

	r.logger.Info().
		Str("client", clientKey).
		Int("users", len(users)).
		Int("errors", len(result.Errors)).
		Int("changesets", len(result.ChangesetIDs)).
		Dur("duration", time.Since(startTime)).
		Msg("Batch complete")

	return result
}

// limitMessage renders a rate limit refusal or a limiter failure.
func (r *Runner) limitMessage(user, clientKey string, err error) string {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		batchUserErrorsTotal.WithLabelValues("rate_limited").Inc()
		r.logger.Warn().
			Str("user", user).
			Str("client", clientKey).
			Str("limit", exceeded.Rate.String()).
			Msg("Rate limit exceeded")
		return fmt.Sprintf("Rate limit exceeded while processing user %s: %s", user, exceeded.Rate)
	}

	batchUserErrorsTotal.WithLabelValues("rate_limiter").Inc()
	r.logger.Error().
		Err(err).
		Str("user", user).
		Str("client", clientKey).
		Msg("Rate limiter unavailable")
	return fmt.Sprintf("Can't check the rate limit while processing user %s.", user)
}
