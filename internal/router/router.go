package router

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/types"
)

// Router queries every configured venue for a quote, picks the best offer
// and dispatches executions to the venue that made it.
type Router struct {
	venues       []*Venue
	byName       map[string]*Venue
	defaultVenue string
}

// New creates a router over the given venues. Quote ties are broken in
// favour of defaultVenue so selection stays deterministic.
func New(defaultVenue string, venues ...*Venue) *Router {
	byName := make(map[string]*Venue, len(venues))
	for _, v := range venues {
		byName[v.Name] = v
	}
	return &Router{
		venues:       venues,
		byName:       byName,
		defaultVenue: defaultVenue,
	}
}

// BestQuote requests quotes from all venues concurrently and selects the one
// with the strictly greatest output amount. A single venue failure aborts the
// whole attempt; the worker treats that as transient and retries.
func (r *Router) BestQuote(ctx context.Context, inputToken, outputToken string, inputAmount float64) (*types.BestQuote, error) {
	logger := log.With().
		Str("component", "router").
		Str("input_token", inputToken).
		Str("output_token", outputToken).
		Float64("input_amount", inputAmount).
		Logger()

	if len(r.venues) < 2 {
		return nil, &types.RoutingError{Err: errors.New("router requires at least two venues")}
	}

	logger.Info().Int("venues", len(r.venues)).Msg("fetching quotes from all venues")

	quotes := make([]*types.Quote, len(r.venues))
	errs := make([]error, len(r.venues))

	var wg sync.WaitGroup
	for i, v := range r.venues {
		wg.Add(1)
		go func(i int, v *Venue) {
			defer wg.Done()
			quotes[i], errs[i] = v.GetQuote(ctx, inputToken, outputToken, inputAmount)
		}(i, v)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			logger.Warn().Err(err).Str("venue", r.venues[i].Name).Msg("venue quote failed")
			return nil, &types.RoutingError{Err: err}
		}
	}

	best := selectBest(quotes, r.defaultVenue)
	alternative := selectBest(remove(quotes, best), r.defaultVenue)

	diff := best.OutputAmount - alternative.OutputAmount
	// The percentage is relative to the alternative's output. A zero
	// alternative output yields a non-finite value; it is reported as-is
	// rather than coerced.
	diffPct := diff / alternative.OutputAmount * 100

	logger.Info().
		Str("selected_venue", best.Venue).
		Float64("selected_output", best.OutputAmount).
		Str("alternative_venue", alternative.Venue).
		Float64("alternative_output", alternative.OutputAmount).
		Float64("difference", diff).
		Float64("difference_pct", diffPct).
		Msg("venue selected")

	return &types.BestQuote{
		Selected:               *best,
		Alternative:            *alternative,
		PriceDifference:        diff,
		PriceDifferencePercent: diffPct,
	}, nil
}

// Execute dispatches the quote to the venue that produced it.
func (r *Router) Execute(ctx context.Context, quote types.Quote) (*types.ExecutionResult, error) {
	venue, ok := r.byName[quote.Venue]
	if !ok {
		return nil, types.ErrUnknownVenue
	}

	result, err := venue.ExecuteSwap(ctx, quote)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &types.ExecutionError{Err: err}
	}
	return result, nil
}

// selectBest returns the quote with the strictly greatest output amount,
// preferring preferred on exact ties.
func selectBest(quotes []*types.Quote, preferred string) *types.Quote {
	var best *types.Quote
	for _, q := range quotes {
		switch {
		case best == nil:
			best = q
		case q.OutputAmount > best.OutputAmount:
			best = q
		case q.OutputAmount == best.OutputAmount && q.Venue == preferred:
			best = q
		}
	}
	return best
}

func remove(quotes []*types.Quote, target *types.Quote) []*types.Quote {
	rest := make([]*types.Quote, 0, len(quotes)-1)
	for _, q := range quotes {
		if q != target {
			rest = append(rest, q)
		}
	}
	return rest
}
