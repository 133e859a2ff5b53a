package ledger

import "encoding/json"

// JSON-RPC 2.0 wire types for the Solana getTransaction call.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// transactionResult mirrors the getTransaction response with "json" encoding
type transactionResult struct {
	Slot        uint64             `json:"slot"`
	BlockTime   *int64             `json:"blockTime"`
	Meta        *transactionMeta   `json:"meta"`
	Transaction transactionPayload `json:"transaction"`
}

type transactionMeta struct {
	Err               any            `json:"err"` // non-nil when the transaction failed on-chain
	Fee               uint64         `json:"fee"`
	PreBalances       []uint64       `json:"preBalances"`
	PostBalances      []uint64       `json:"postBalances"`
	PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
	PostTokenBalances []tokenBalance `json:"postTokenBalances"`
}

type tokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount uiTokenAmount `json:"uiTokenAmount"`
}

type uiTokenAmount struct {
	Amount   string   `json:"amount"`
	Decimals int      `json:"decimals"`
	UIAmount *float64 `json:"uiAmount"`
}

type transactionPayload struct {
	Signatures []string           `json:"signatures"`
	Message    transactionMessage `json:"message"`
}

type transactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}
