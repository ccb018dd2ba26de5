package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"pump-sniper-go/internal/pumpfun"
)

// State is where a holding is in its lifecycle.
type State int

const (
	StateDetected State = iota
	StateBought
	StateMonitoring
	StateClosed
)

var stateNames = map[State]string{
	StateDetected:   "detected",
	StateBought:     "bought",
	StateMonitoring: "monitoring",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for k, v := range stateNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", name)
}

// CloseReason says why a holding left Monitoring.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonTakeProfit
	ReasonStopLoss
	ReasonTimeout
	ReasonManual
)

func (r CloseReason) String() string {
	switch r {
	case ReasonTakeProfit:
		return "take_profit"
	case ReasonStopLoss:
		return "stop_loss"
	case ReasonTimeout:
		return "timeout"
	case ReasonManual:
		return "manual"
	default:
		return ""
	}
}

// Config is the per-holding exit and entry policy. Holdings keep the copy
// they were bought with.
type Config struct {
	TakeProfitPercent  float64       `json:"take_profit_percent" mapstructure:"take_profit_percent"`
	StopLossPercent    float64       `json:"stop_loss_percent" mapstructure:"stop_loss_percent"`
	Timeout            time.Duration `json:"timeout" mapstructure:"timeout"`
	SaferSniping       bool          `json:"safer_sniping" mapstructure:"safer_sniping"`
	MinTokensThreshold uint64        `json:"min_tokens_threshold" mapstructure:"min_tokens_threshold"`
	MaxSOLPerToken     float64       `json:"max_sol_per_token" mapstructure:"max_sol_per_token"`
	MinLiquiditySOL    float64       `json:"min_liquidity_sol" mapstructure:"min_liquidity_sol"`
}

func DefaultConfig() Config {
	return Config{
		TakeProfitPercent:  30,
		StopLossPercent:    -20,
		Timeout:            time.Hour,
		SaferSniping:       true,
		MinTokensThreshold: 1_000_000,
		MaxSOLPerToken:     0.0001,
		MinLiquiditySOL:    0.01,
	}
}

// TakeProfitPrice is the price at or above which a holding takes profit.
func (c Config) TakeProfitPrice(entry float64) float64 {
	return entry * (1 + c.TakeProfitPercent/100)
}

// StopLossPrice is the price at or below which a holding is stopped out.
func (c Config) StopLossPrice(entry float64) float64 {
	return entry * (1 + c.StopLossPercent/100)
}

// Evaluate decides whether a holding bought at entry should close now.
// Take profit wins over stop loss, and both win over the timeout.
func (c Config) Evaluate(entry, price float64, held time.Duration) (CloseReason, bool) {
	if entry > 0 && price > 0 {
		if price >= c.TakeProfitPrice(entry) {
			return ReasonTakeProfit, true
		}
		if price <= c.StopLossPrice(entry) {
			return ReasonStopLoss, true
		}
	}
	if c.Timeout > 0 && held >= c.Timeout {
		return ReasonTimeout, true
	}
	return ReasonNone, false
}

// ShouldBuy applies the safer-sniping entry rules to a quoted buy of tokens at price.
func (c Config) ShouldBuy(curve *pumpfun.BondingCurveState, tokens uint64, price float64) (bool, string) {
	if !c.SaferSniping {
		return true, "safety checks disabled"
	}
	if curve == nil {
		return false, "bonding curve unavailable"
	}
	if curve.Complete {
		return false, "bonding curve already complete"
	}
	if tokens < c.MinTokensThreshold {
		return false, fmt.Sprintf("token amount %d below minimum %d", tokens, c.MinTokensThreshold)
	}
	if c.MaxSOLPerToken > 0 && price > c.MaxSOLPerToken {
		return false, fmt.Sprintf("price %.12f SOL/token above maximum %.12f", price, c.MaxSOLPerToken)
	}
	if liquidity := curve.LiquiditySOL(); liquidity < c.MinLiquiditySOL {
		return false, fmt.Sprintf("liquidity %.4f SOL below minimum %.4f", liquidity, c.MinLiquiditySOL)
	}
	return true, "all entry conditions met"
}
