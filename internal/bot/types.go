package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-go/internal/detection"
	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/strategy"
)

// Mode selects whether detected tokens are bought or only evaluated.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeReal   Mode = "real"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDryRun, "dry", "dryrun":
		return ModeDryRun, nil
	case ModeReal, "live":
		return ModeReal, nil
	}
	return "", errs.Errorf(errs.Config, "parse mode", "unknown mode %q (want dry-run or real)", s)
}

// UserSettings are the operator-tunable trading knobs persisted under bot_settings.
type UserSettings struct {
	TakeProfitPercent  float64 `json:"take_profit_percent"`
	StopLossPercent    float64 `json:"stop_loss_percent"`
	TimeoutSeconds     int64   `json:"timeout_seconds"`
	BuyAmountSOL       float64 `json:"buy_amount"`
	MaxHeldCoins       int     `json:"max_held_coins"`
	SaferSniping       bool    `json:"safer_sniping"`
	MinTokensThreshold uint64  `json:"min_tokens_threshold"`
	MaxSOLPerToken     float64 `json:"max_sol_per_token"`
	SlippageBps        uint64  `json:"slippage_bps"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		TakeProfitPercent:  30,
		StopLossPercent:    -20,
		TimeoutSeconds:     3600,
		BuyAmountSOL:       0.1,
		MaxHeldCoins:       10,
		SaferSniping:       true,
		MinTokensThreshold: 1_000_000,
		MaxSOLPerToken:     0.0001,
		SlippageBps:        500,
	}
}

func (s UserSettings) Validate() error {
	switch {
	case s.TakeProfitPercent <= 0:
		return errs.Errorf(errs.Config, "settings", "take_profit_percent must be positive, got %v", s.TakeProfitPercent)
	case s.StopLossPercent >= 0:
		return errs.Errorf(errs.Config, "settings", "stop_loss_percent must be negative, got %v", s.StopLossPercent)
	case s.BuyAmountSOL <= 0:
		return errs.Errorf(errs.Config, "settings", "buy_amount must be positive, got %v", s.BuyAmountSOL)
	case s.SlippageBps > 10_000:
		return errs.Errorf(errs.Config, "settings", "slippage_bps must be at most 10000, got %d", s.SlippageBps)
	case s.MaxHeldCoins < 0:
		return errs.Errorf(errs.Config, "settings", "max_held_coins must not be negative, got %d", s.MaxHeldCoins)
	}
	return nil
}

// Strategy overlays the settings on base, keeping the fields settings do not carry.
func (s UserSettings) Strategy(base strategy.Config) strategy.Config {
	base.TakeProfitPercent = s.TakeProfitPercent
	base.StopLossPercent = s.StopLossPercent
	base.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	base.SaferSniping = s.SaferSniping
	base.MinTokensThreshold = s.MinTokensThreshold
	base.MaxSOLPerToken = s.MaxSOLPerToken
	return base
}

// UserAccount is the per-wallet record stored under user_<address>.
type UserAccount struct {
	WalletAddress   string          `json:"wallet_address"`
	CreatedAt       time.Time       `json:"created_at"`
	LastActive      time.Time       `json:"last_active"`
	TotalTrades     int             `json:"total_trades"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
	Settings        UserSettings    `json:"settings"`
}

// Status is a point-in-time view of the bot.
type Status struct {
	Running   bool               `json:"running"`
	Mode      Mode               `json:"mode,omitempty"`
	Wallet    string             `json:"wallet"`
	Holdings  int                `json:"holdings"`
	Trades    int                `json:"trades"`
	Detection detection.Snapshot `json:"detection"`
	StartedAt time.Time          `json:"started_at,omitempty"`
}

func (s Status) Uptime(now time.Time) time.Duration {
	if !s.Running || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

func (s Status) String() string {
	state := "stopped"
	if s.Running {
		state = fmt.Sprintf("running (%s)", s.Mode)
	}
	return fmt.Sprintf("%s, %d holdings, %d trades", state, s.Holdings, s.Trades)
}

// persistedState is what survives a restart under bot_state.
type persistedState struct {
	Running   bool      `json:"running"`
	Mode      Mode      `json:"mode,omitempty"`
	Wallet    string    `json:"wallet"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}
