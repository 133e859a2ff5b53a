package ledger

import (
	"fmt"

	"raffler/domain/entities"
)

// lamportsPerSOL is the native coin's base-unit scale
const lamportsPerSOL = 1e9

// extractPayment normalizes a fetched transaction into a payment fact.
// Detection order: native lamport delta at the recipient's account index,
// then each supported token's associated-account balance delta. The first
// positive delta wins. The sender is the fee payer (first account key).
func (c *Client) extractPayment(signature string, tx *transactionResult) (*entities.PaymentFact, error) {
	if tx.Meta == nil {
		return nil, c.parseFailed(signature, "transaction has no metadata")
	}
	if tx.Meta.Err != nil {
		return nil, c.parseFailed(signature, "transaction failed on-chain")
	}
	if len(tx.Transaction.Message.AccountKeys) == 0 {
		return nil, c.parseFailed(signature, "transaction has no account keys")
	}

	sender := tx.Transaction.Message.AccountKeys[0]

	// Native SOL: balance delta at the recipient account index
	for i, key := range tx.Transaction.Message.AccountKeys {
		if key != c.recipient {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			break
		}
		pre := tx.Meta.PreBalances[i]
		post := tx.Meta.PostBalances[i]
		if post > pre {
			return &entities.PaymentFact{
				Signature: signature,
				Sender:    sender,
				Amount:    float64(post-pre) / lamportsPerSOL,
				Currency:  entities.CurrencySOL,
				Slot:      tx.Slot,
			}, nil
		}
		break
	}

	// SPL tokens: pre/post balance diff on the recipient-owned token account
	for _, candidate := range []struct {
		mint     string
		currency entities.Currency
	}{
		{c.usdcMint, entities.CurrencyUSDC},
		{c.owlMint, entities.CurrencyOWL},
	} {
		if candidate.mint == "" {
			continue
		}
		if delta, ok := c.tokenDelta(tx.Meta, candidate.mint); ok && delta > 0 {
			return &entities.PaymentFact{
				Signature: signature,
				Sender:    sender,
				Amount:    delta,
				Currency:  candidate.currency,
				Slot:      tx.Slot,
			}, nil
		}
	}

	return nil, c.parseFailed(signature, "no transfer to the recipient wallet in any supported currency")
}

// tokenDelta computes the recipient's balance change for a mint. Returns
// ok=false when the transaction touches no recipient-owned account of that
// mint.
func (c *Client) tokenDelta(meta *transactionMeta, mint string) (float64, bool) {
	pre, preFound := findTokenBalance(meta.PreTokenBalances, c.recipient, mint)
	post, postFound := findTokenBalance(meta.PostTokenBalances, c.recipient, mint)
	if !preFound && !postFound {
		return 0, false
	}
	// A freshly created associated account has no pre balance
	return post - pre, true
}

func findTokenBalance(balances []tokenBalance, owner, mint string) (float64, bool) {
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			if b.UITokenAmount.UIAmount != nil {
				return *b.UITokenAmount.UIAmount, true
			}
			return 0, true
		}
	}
	return 0, false
}

func (c *Client) parseFailed(signature, reason string) error {
	return &entities.VerificationError{
		Kind:       entities.ErrorKindParseFailed,
		Message:    fmt.Sprintf("transaction %s is not a recognized payment: %s", signature, reason),
		Suggestion: "check that the transaction sent SOL, USDC, or OWL to the raffle wallet",
	}
}
