package router

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/types"
)

// Venue simulates a liquidity source offering swap quotes and executions.
// Each venue has its own latency, fee and reliability profile.
type Venue struct {
	Name           string
	BasePrice      float64
	FeeRate        float64       // fraction of output taken as fee
	QuoteDelay     time.Duration // simulated quote latency
	ExecutionDelay time.Duration // simulated execution latency
	FailureRate    float64       // 0-1, probability an execution is rejected
}

// DefaultVenues returns the simulated venue set used in production wiring.
func DefaultVenues(quoteDelay, executionDelay time.Duration, failureRate float64) []*Venue {
	return []*Venue{
		{
			Name:           "Raydium",
			BasePrice:      1.0,
			FeeRate:        0.003, // 0.3%
			QuoteDelay:     quoteDelay,
			ExecutionDelay: executionDelay,
			FailureRate:    failureRate,
		},
		{
			Name:           "Meteora",
			BasePrice:      1.0,
			FeeRate:        0.002, // 0.2%
			QuoteDelay:     quoteDelay + 50*time.Millisecond,
			ExecutionDelay: executionDelay + 200*time.Millisecond,
			FailureRate:    failureRate,
		},
	}
}

// GetQuote returns the venue's priced offer for the requested swap. The
// quoted price varies within 2% of the venue's base price per request.
func (v *Venue) GetQuote(ctx context.Context, inputToken, outputToken string, inputAmount float64) (*types.Quote, error) {
	if err := sleep(ctx, v.QuoteDelay); err != nil {
		return nil, err
	}

	price := v.BasePrice * (0.98 + rand.Float64()*0.04)
	outputAmount := inputAmount * price * (1 - v.FeeRate)

	log.Debug().
		Str("venue", v.Name).
		Str("input_token", inputToken).
		Str("output_token", outputToken).
		Float64("input_amount", inputAmount).
		Float64("output_amount", outputAmount).
		Float64("price", price).
		Msg("venue quote generated")

	return &types.Quote{
		Venue:        v.Name,
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InputAmount:  inputAmount,
		OutputAmount: outputAmount,
		Price:        price,
		FeeRate:      v.FeeRate,
	}, nil
}

// ExecuteSwap submits a quote to the venue. Execution fails with the venue's
// configured probability, and the realized price deviates from the quoted
// price by a bounded random slippage factor (within 1%).
func (v *Venue) ExecuteSwap(ctx context.Context, quote types.Quote) (*types.ExecutionResult, error) {
	logger := log.With().
		Str("venue", v.Name).
		Logger()

	if err := sleep(ctx, v.ExecutionDelay); err != nil {
		return nil, err
	}

	if rand.Float64() < v.FailureRate {
		logger.Warn().
			Float64("failure_rate", v.FailureRate).
			Msg("simulated swap execution failure")
		return nil, fmt.Errorf("%s: simulated swap execution failure", v.Name)
	}

	slippageFactor := 0.99 + rand.Float64()*0.02
	result := &types.ExecutionResult{
		TxHash:         mockTxHash(),
		ExecutedPrice:  quote.Price * slippageFactor,
		ExecutedAmount: quote.OutputAmount * slippageFactor,
		SlippagePct:    math.Abs(1-slippageFactor) * 100,
	}

	logger.Info().
		Str("tx_hash", result.TxHash).
		Float64("executed_price", result.ExecutedPrice).
		Float64("executed_amount", result.ExecutedAmount).
		Float64("slippage_pct", result.SlippagePct).
		Msg("swap executed on venue")

	return result, nil
}

const hexChars = "0123456789abcdef"

// mockTxHash generates a 64-character hex string standing in for an
// on-chain transaction signature.
func mockTxHash() string {
	hash := make([]byte, 64)
	for i := range hash {
		hash[i] = hexChars[rand.Intn(len(hexChars))]
	}
	return string(hash)
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
