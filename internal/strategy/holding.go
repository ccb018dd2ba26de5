package strategy

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pump-sniper-go/internal/metadata"
	"pump-sniper-go/internal/pricing"
)

// Holding is an open position in one mint.
type Holding struct {
	Mint         solana.PublicKey        `json:"mint"`
	Creator      *solana.PublicKey       `json:"creator,omitempty"`
	Amount       uint64                  `json:"amount"`
	EntryPrice   float64                 `json:"entry_price"`
	SpentSOL     float64                 `json:"spent_sol"`
	EntryTime    time.Time               `json:"entry_time"`
	BuySignature string                  `json:"buy_signature"`
	State        State                   `json:"state"`
	Reason       CloseReason             `json:"close_reason,omitempty"`
	Config       Config                  `json:"config"`
	Metadata     *metadata.TokenMetadata `json:"metadata,omitempty"`
}

func (h *Holding) Symbol() string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata.Symbol
}

func (h *Holding) Name() string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata.Name
}

// Value is the SOL worth of the position at price.
func (h *Holding) Value(price float64) float64 {
	return pricing.SOLForTokens(h.Amount, price)
}

func (h *Holding) LogFields() logrus.Fields {
	return logrus.Fields{
		"mint":        h.Mint.String(),
		"symbol":      h.Symbol(),
		"amount":      h.Amount,
		"entry_price": h.EntryPrice,
		"spent_sol":   h.SpentSOL,
		"state":       h.State.String(),
	}
}

// Trade types
const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)

// TradeRecord is one executed buy or sell.
type TradeRecord struct {
	ID                string           `json:"id"`
	Mint              string           `json:"mint"`
	Symbol            string           `json:"symbol,omitempty"`
	Name              string           `json:"name,omitempty"`
	Image             string           `json:"image,omitempty"`
	TradeType         string           `json:"trade_type"`
	Timestamp         time.Time        `json:"timestamp"`
	TxSignature       string           `json:"tx_signature"`
	AmountSOL         decimal.Decimal  `json:"amount_sol"`
	AmountTokens      decimal.Decimal  `json:"amount_tokens"`
	PricePerToken     decimal.Decimal  `json:"price_per_token"`
	ProfitLoss        *decimal.Decimal `json:"profit_loss,omitempty"`
	ProfitLossPercent *decimal.Decimal `json:"profit_loss_percent,omitempty"`
	Reason            string           `json:"reason,omitempty"`
}

func newTradeRecord(h *Holding, tradeType, signature string, sol float64, tokens uint64, price float64, at time.Time) TradeRecord {
	rec := TradeRecord{
		ID:            uuid.NewString(),
		Mint:          h.Mint.String(),
		Symbol:        h.Symbol(),
		Name:          h.Name(),
		TradeType:     tradeType,
		Timestamp:     at,
		TxSignature:   signature,
		AmountSOL:     decimal.NewFromFloat(sol),
		AmountTokens:  decimal.NewFromBigInt(new(big.Int).SetUint64(tokens), 0),
		PricePerToken: decimal.NewFromFloat(price),
	}
	if h.Metadata != nil {
		rec.Image = h.Metadata.Image
	}
	return rec
}

// JournalTime implements logger.TradeEntry.
func (t TradeRecord) JournalTime() time.Time { return t.Timestamp }

// JournalFields implements logger.TradeEntry.
func (t TradeRecord) JournalFields() logrus.Fields {
	f := logrus.Fields{
		"trade_id":   t.ID,
		"trade_type": t.TradeType,
		"mint":       t.Mint,
		"symbol":     t.Symbol,
		"signature":  t.TxSignature,
		"amount_sol": t.AmountSOL.String(),
		"tokens":     t.AmountTokens.String(),
		"price":      t.PricePerToken.String(),
	}
	if t.ProfitLoss != nil {
		f["profit_loss"] = t.ProfitLoss.String()
	}
	if t.ProfitLossPercent != nil {
		f["profit_loss_pct"] = t.ProfitLossPercent.StringFixed(2)
	}
	if t.Reason != "" {
		f["reason"] = t.Reason
	}
	return f
}
