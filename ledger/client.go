// Package ledger reads raffle payments off the Solana ledger. It is the only
// part of the system that talks to the outside world, so every call has a
// bounded per-attempt timeout and a bounded total retry budget.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"raffler/domain/entities"

	log "github.com/sirupsen/logrus"
)

// Commitment levels tried in order. A very recent transaction may only be
// visible at the weaker level, so "confirmed" is tried first.
var commitmentLevels = []string{"confirmed", "finalized"}

const (
	defaultAttemptTimeout = 10 * time.Second
	defaultRetryDelay     = 2 * time.Second
	defaultMaxRounds      = 3
)

// Client reads transactions from a Solana RPC node
type Client struct {
	endpoint  string
	recipient string
	usdcMint  string
	owlMint   string
	tolerance float64

	httpClient     *http.Client
	attemptTimeout time.Duration
	retryDelay     time.Duration
	maxRounds      int
}

// Option mutates the client configuration during construction
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC requests
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetry overrides the retry budget. Primarily for tests.
func WithRetry(maxRounds int, retryDelay time.Duration) Option {
	return func(c *Client) {
		if maxRounds > 0 {
			c.maxRounds = maxRounds
		}
		c.retryDelay = retryDelay
	}
}

// WithAttemptTimeout overrides the per-attempt RPC timeout
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// NewClient creates a ledger client for the given RPC endpoint and recipient
// wallet. usdcMint and owlMint identify the supported SPL token currencies;
// an empty mint disables that currency.
func NewClient(endpoint, recipient, usdcMint, owlMint string, tolerance float64, opts ...Option) *Client {
	c := &Client{
		endpoint:       endpoint,
		recipient:      recipient,
		usdcMint:       usdcMint,
		owlMint:        owlMint,
		tolerance:      tolerance,
		httpClient:     &http.Client{},
		attemptTimeout: defaultAttemptTimeout,
		retryDelay:     defaultRetryDelay,
		maxRounds:      defaultMaxRounds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPayment fetches a transaction by signature and extracts the payment
// fact. Commitment levels are tried in order with a short delay between
// rounds, because a just-sent transaction may not be visible everywhere yet.
func (c *Client) FetchPayment(ctx context.Context, signature string) (*entities.PaymentFact, error) {
	if c.recipient == "" {
		return nil, &entities.VerificationError{
			Kind:       entities.ErrorKindConfig,
			Message:    "recipient wallet is not configured",
			Suggestion: "set RECIPIENT_WALLET and restart the service",
		}
	}

	var transportErr error
	for round := 0; round < c.maxRounds; round++ {
		if round > 0 {
			if err := sleepCtx(ctx, c.retryDelay); err != nil {
				return nil, &entities.VerificationError{
					Kind:    entities.ErrorKindTemporary,
					Message: "ledger lookup cancelled",
					Err:     err,
				}
			}
		}

		for _, commitment := range commitmentLevels {
			tx, err := c.getTransaction(ctx, signature, commitment)
			if err != nil {
				transportErr = err
				log.WithError(err).WithFields(log.Fields{
					"signature":  signature,
					"commitment": commitment,
				}).Warn("ledger RPC attempt failed")
				continue
			}
			if tx == nil {
				continue // not visible at this commitment yet
			}
			return c.extractPayment(signature, tx)
		}
	}

	if transportErr != nil {
		return nil, &entities.VerificationError{
			Kind:       entities.ErrorKindTemporary,
			Message:    "ledger RPC is unavailable",
			Suggestion: "try again shortly",
			Err:        transportErr,
		}
	}
	return nil, &entities.VerificationError{
		Kind:       entities.ErrorKindNotFound,
		Message:    fmt.Sprintf("transaction %s was not found on the ledger", signature),
		Suggestion: "the transaction may still be confirming, try again shortly",
	}
}

// VerifyPayment re-checks a signature against an expected amount and currency
// using the full fetch path. Amount and currency mismatches are permanent;
// everything else that can fail here is temporary.
func (c *Client) VerifyPayment(ctx context.Context, signature string, amount float64, currency entities.Currency) error {
	fact, err := c.FetchPayment(ctx, signature)
	if err != nil {
		var verr *entities.VerificationError
		if errors.As(err, &verr) && verr.Kind == entities.ErrorKindNotFound {
			// During re-verification a missing transaction is transient:
			// the signature was already seen once.
			return &entities.VerificationError{
				Kind:       entities.ErrorKindTemporary,
				Message:    verr.Message,
				Suggestion: "verification will be retried",
				Err:        verr,
			}
		}
		return err
	}

	if fact.Currency != currency {
		return &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("payment currency %s does not match expected %s", fact.Currency, currency),
			Payment: fact,
		}
	}

	diff := fact.Amount - amount
	if diff < 0 {
		diff = -diff
	}
	if diff > c.tolerance {
		return &entities.VerificationError{
			Kind:    entities.ErrorKindMismatch,
			Message: fmt.Sprintf("payment amount %g does not match expected %g", fact.Amount, amount),
			Payment: fact,
		}
	}

	return nil
}

// getTransaction performs one getTransaction RPC call. A nil result with nil
// error means the signature is not visible at the requested commitment.
func (c *Client) getTransaction(ctx context.Context, signature, commitment string) (*transactionResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			signature,
			map[string]any{
				"encoding":                       "json",
				"commitment":                     commitment,
				"maxSupportedTransactionVersion": 0,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPC response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RPC returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, nil
	}

	var tx transactionResult
	if err := json.Unmarshal(rpcResp.Result, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &tx, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
