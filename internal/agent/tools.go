package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NadavAzoulay124/portfolio.AI/internal/models"
	"github.com/NadavAzoulay124/portfolio.AI/internal/portfolio"
	"github.com/NadavAzoulay124/portfolio.AI/internal/search"
)

// confirmTTL bounds how long a proposed trade stays confirmable.
const confirmTTL = 5 * time.Minute

// adapter is the shared state behind the portfolio tools. Each tool call
// works on its own short-lived ledger session; no state is carried between
// calls except pending trade confirmations.
type adapter struct {
	db       *gorm.DB
	searcher search.Searcher
	confirms *confirmations
	logger   *zap.Logger
}

// ledger opens a fresh session against the store for one tool call.
func (a *adapter) ledger() *portfolio.Ledger {
	return portfolio.NewLedger(a.db.Session(&gorm.Session{}), a.logger)
}

// NewToolset builds the fixed tool surface the agent exposes: the three
// portfolio actions plus web search.
func NewToolset(db *gorm.DB, searcher search.Searcher, logger *zap.Logger) []Tool {
	a := &adapter{
		db:       db,
		searcher: searcher,
		confirms: newConfirmations(confirmTTL),
		logger:   logger,
	}
	return []Tool{
		&showPortfolioTool{a},
		&buyStockTool{a},
		&sellStockTool{a},
		&webSearchTool{a},
	}
}

// --- show_portfolio ---

type showPortfolioTool struct{ *adapter }

func (t *showPortfolioTool) Name() string { return "show_portfolio" }

func (t *showPortfolioTool) Description() string {
	return "Return the current portfolio as a JSON array, ordered by ticker."
}

func (t *showPortfolioTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{},
	}
}

func (t *showPortfolioTool) Call(ctx context.Context, _ json.RawMessage) (any, error) {
	positions, err := t.ledger().List()
	if err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, len(positions))
	for i := range positions {
		records = append(records, positions[i].AsRecord())
	}
	return records, nil
}

// --- buy_stock ---

type buyArgs struct {
	Ticker       string   `json:"ticker"`
	Qty          float64  `json:"qty"`
	ExecPrice    *float64 `json:"exec_price,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	ConfirmToken string   `json:"confirm_token,omitempty"`
}

// canonical is the argument form a confirmation token is bound to.
func (in buyArgs) canonical() string {
	in.ConfirmToken = ""
	b, _ := json.Marshal(in)
	return string(b)
}

type buyStockTool struct{ *adapter }

func (t *buyStockTool) Name() string { return "buy_stock" }

func (t *buyStockTool) Description() string {
	return "Buy shares of a ticker and return the updated position. " +
		"Without confirm_token this only proposes the trade and returns a token; " +
		"pass the token back, after the user explicitly confirmed, to execute."
}

func (t *buyStockTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"ticker":        {Type: jsonschema.String, Description: "Stock ticker, e.g., AAPL"},
			"qty":           {Type: jsonschema.Number, Description: "Number of shares to buy (>0)"},
			"exec_price":    {Type: jsonschema.Number, Description: "Executed price"},
			"current_price": {Type: jsonschema.Number, Description: "Current market price"},
			"confirm_token": {Type: jsonschema.String, Description: "Token from a prior buy_stock call; pass only after the user explicitly confirmed"},
		},
		Required: []string{"ticker", "qty"},
	}
}

func (t *buyStockTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var in buyArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	in.Ticker = portfolio.NormalizeTicker(in.Ticker)
	if in.Ticker == "" {
		return nil, errors.New("ticker is required")
	}
	if in.Qty <= 0 {
		return nil, portfolio.ErrInvalidQuantity
	}

	bound := in.canonical()
	if in.ConfirmToken == "" {
		return t.proposeTrade("buy", bound, in.Ticker, in.Qty), nil
	}
	if err := t.confirms.redeem(in.ConfirmToken, "buy", bound); err != nil {
		return nil, err
	}

	pos, err := t.ledger().Buy(in.Ticker, in.Qty, in.ExecPrice, in.CurrentPrice)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return map[string]any{}, nil
	}
	t.logger.Info("trade executed", zap.String("action", "buy"),
		zap.String("ticker", in.Ticker), zap.Float64("qty", in.Qty))
	return pos.AsRecord(), nil
}

// --- sell_stock ---

type sellArgs struct {
	Ticker       string  `json:"ticker"`
	Qty          float64 `json:"qty"`
	ConfirmToken string  `json:"confirm_token,omitempty"`
}

func (in sellArgs) canonical() string {
	in.ConfirmToken = ""
	b, _ := json.Marshal(in)
	return string(b)
}

type sellStockTool struct{ *adapter }

func (t *sellStockTool) Name() string { return "sell_stock" }

func (t *sellStockTool) Description() string {
	return "Sell shares and return the updated position, or an empty object if the position was closed. " +
		"Without confirm_token this only proposes the trade and returns a token; " +
		"pass the token back, after the user explicitly confirmed, to execute."
}

func (t *sellStockTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"ticker":        {Type: jsonschema.String, Description: "Stock ticker, e.g., AAPL"},
			"qty":           {Type: jsonschema.Number, Description: "Number of shares to sell (>0)"},
			"confirm_token": {Type: jsonschema.String, Description: "Token from a prior sell_stock call; pass only after the user explicitly confirmed"},
		},
		Required: []string{"ticker", "qty"},
	}
}

func (t *sellStockTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var in sellArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	in.Ticker = portfolio.NormalizeTicker(in.Ticker)
	if in.Ticker == "" {
		return nil, errors.New("ticker is required")
	}
	if in.Qty <= 0 {
		return nil, portfolio.ErrInvalidQuantity
	}

	bound := in.canonical()
	if in.ConfirmToken == "" {
		return t.proposeTrade("sell", bound, in.Ticker, in.Qty), nil
	}
	if err := t.confirms.redeem(in.ConfirmToken, "sell", bound); err != nil {
		return nil, err
	}

	pos, err := t.ledger().Sell(in.Ticker, in.Qty)
	if err != nil {
		return nil, err
	}
	t.logger.Info("trade executed", zap.String("action", "sell"),
		zap.String("ticker", in.Ticker), zap.Float64("qty", in.Qty))
	if pos == nil {
		// Position closed by the sell.
		return map[string]any{}, nil
	}
	return pos.AsRecord(), nil
}

// proposeTrade registers a pending trade and builds the payload that tells
// the model to come back with user confirmation.
func (a *adapter) proposeTrade(action, bound, ticker string, qty float64) map[string]any {
	token := a.confirms.propose(action, bound)
	a.logger.Info("trade proposed", zap.String("action", action),
		zap.String("ticker", ticker), zap.Float64("qty", qty))
	return map[string]any{
		"status":        "confirmation_required",
		"action":        action,
		"ticker":        ticker,
		"qty":           qty,
		"confirm_token": token,
		"message": "No trade was executed. Ask the user to explicitly confirm this trade, " +
			"then call the tool again with the same arguments plus confirm_token.",
	}
}

// --- web_search ---

type webSearchArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results,omitempty"`
}

type webSearchTool struct{ *adapter }

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) Description() string {
	return "Search the web and return up to num_results results with title, url, snippet."
}

func (t *webSearchTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"query":       {Type: jsonschema.String, Description: "Search query"},
			"num_results": {Type: jsonschema.Integer, Description: "Number of results, 1-10 (default 5)"},
		},
		Required: []string{"query"},
	}
}

func (t *webSearchTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var in webSearchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	// Search never fails: bad queries and network errors come back empty.
	return t.searcher.Search(ctx, in.Query, in.NumResults), nil
}
