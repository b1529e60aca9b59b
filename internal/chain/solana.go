package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// TokenHolding is one SPL token balance owned by a wallet.
type TokenHolding struct {
	Mint       string
	RawBalance string
	Decimals   int
	Balance    decimal.Decimal
}

// WalletReader enumerates on-chain token holdings for a wallet.
type WalletReader interface {
	TokenHoldings(ctx context.Context, walletAddress string) ([]TokenHolding, error)
}

const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// SolanaReader reads token accounts through the standard JSON-RPC
// getTokenAccountsByOwner call with jsonParsed encoding.
type SolanaReader struct {
	rest *resty.Client
}

func NewSolanaReader(rpcURL string, timeout time.Duration) *SolanaReader {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		rpcURL = "https://api.mainnet-beta.solana.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SolanaReader{
		rest: resty.New().
			SetBaseURL(rpcURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type tokenAccountsResponse struct {
	Result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals int    `json:"decimals"`
								UIAmount string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *SolanaReader) TokenHoldings(ctx context.Context, walletAddress string) ([]TokenHolding, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	body := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []any{
			walletAddress,
			map[string]string{"programId": tokenProgramID},
			map[string]string{"encoding": "jsonParsed"},
		},
	}
	var out tokenAccountsResponse
	resp, err := r.rest.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("")
	if err != nil {
		return nil, fmt.Errorf("solana rpc request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("solana rpc error (%d): %s", resp.StatusCode(), resp.String())
	}
	if out.Error != nil {
		return nil, fmt.Errorf("solana rpc error (%d): %s", out.Error.Code, out.Error.Message)
	}

	holdings := make([]TokenHolding, 0, len(out.Result.Value))
	for _, item := range out.Result.Value {
		info := item.Account.Data.Parsed.Info
		if strings.TrimSpace(info.Mint) == "" {
			continue
		}
		balance, err := decimal.NewFromString(info.TokenAmount.UIAmount)
		if err != nil {
			raw, rawErr := decimal.NewFromString(info.TokenAmount.Amount)
			if rawErr != nil {
				continue
			}
			balance = raw.Shift(int32(-info.TokenAmount.Decimals))
		}
		holdings = append(holdings, TokenHolding{
			Mint:       info.Mint,
			RawBalance: info.TokenAmount.Amount,
			Decimals:   info.TokenAmount.Decimals,
			Balance:    balance,
		})
	}
	return holdings, nil
}
