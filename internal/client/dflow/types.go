package dflow

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Market is the typed shape of a DFlow prediction market. Bid/ask quotes are
// optional: a thin book can miss either side, and a settled market carries
// neither.
type Market struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
	Status string `json:"status"`

	YesBid *decimal.Decimal `json:"yesBid,omitempty"`
	YesAsk *decimal.Decimal `json:"yesAsk,omitempty"`
	NoBid  *decimal.Decimal `json:"noBid,omitempty"`
	NoAsk  *decimal.Decimal `json:"noAsk,omitempty"`

	Change24h    *decimal.Decimal `json:"change24h,omitempty"`
	Change24hPct *decimal.Decimal `json:"change24hPct,omitempty"`
	Volume24h    *decimal.Decimal `json:"volume24h,omitempty"`

	// Accounts maps settlement (base) mints to the outcome token pair minted
	// against them.
	Accounts map[string]MarketAccounts `json:"accounts,omitempty"`

	ResolvedAt *string `json:"resolvedAt,omitempty"`
}

type MarketAccounts struct {
	YesMint string `json:"yesMint"`
	NoMint  string `json:"noMint"`
}

// OutcomeForMint reports which side of the market a mint represents, plus the
// base mint it settles into. ok is false when the mint is not part of this
// market.
func (m *Market) OutcomeForMint(mint string) (outcome, baseMint string, ok bool) {
	if m == nil {
		return "", "", false
	}
	mint = strings.TrimSpace(mint)
	for base, acc := range m.Accounts {
		if acc.YesMint == mint {
			return "YES", base, true
		}
		if acc.NoMint == mint {
			return "NO", base, true
		}
	}
	return "", "", false
}

type filterMintsRequest struct {
	Mints []string `json:"mints"`
}

type filterMintsResponse struct {
	OutcomeMints []string `json:"outcomeMints"`
}

// RedemptionRequest asks DFlow to convert a held outcome token back into the
// base currency after market resolution.
type RedemptionRequest struct {
	WalletAddress string          `json:"walletAddress"`
	TokenMint     string          `json:"tokenMint"`
	Amount        decimal.Decimal `json:"amount"`
}

// RedemptionResult is the provider's confirmation of an executed redemption.
// AmountReceived is the total base-currency amount, not a per-token rate.
type RedemptionResult struct {
	TxSignature    string          `json:"txSignature"`
	AmountRedeemed decimal.Decimal `json:"amountRedeemed"`
	AmountReceived decimal.Decimal `json:"amountReceived"`
}

// PriceEvent is one message on the market price feed.
type PriceEvent struct {
	EventType string `json:"event_type"`
	Ticker    string `json:"ticker"`

	YesBid *decimal.Decimal `json:"yesBid,omitempty"`
	YesAsk *decimal.Decimal `json:"yesAsk,omitempty"`
	NoBid  *decimal.Decimal `json:"noBid,omitempty"`
	NoAsk  *decimal.Decimal `json:"noAsk,omitempty"`

	Timestamp string `json:"timestamp"`
}
