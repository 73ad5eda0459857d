package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polymind/internal/model"
)

// DefaultGammaURL is the public Polymarket metadata API.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// Client fetches market metadata from a Gamma-style REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// gammaMarket is the wire shape of one market record.
type gammaMarket struct {
	Slug          string  `json:"slug"`
	Question      string  `json:"question"`
	ConditionID   string  `json:"conditionId"`
	ClobTokenIDs  string  `json:"clobTokenIds"`
	OutcomePrices string  `json:"outcomePrices"`
	Category      string  `json:"category"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
	VolumeNum     float64 `json:"volumeNum"`
	LiquidityNum  float64 `json:"liquidityNum"`
}

// FetchMarkets returns up to limit markets. When activeOnly is set, closed
// markets are excluded server-side.
func (c *Client) FetchMarkets(ctx context.Context, limit int, activeOnly bool) ([]model.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if activeOnly {
		params.Set("active", "true")
		params.Set("closed", "false")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch markets: status %d: %s", resp.StatusCode, body)
	}

	var raw []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}

	markets := make([]model.Market, 0, len(raw))
	for _, gm := range raw {
		m, err := gm.toModel()
		if err != nil {
			c.logger.Warn("skip market record", zap.String("slug", gm.Slug), zap.Error(err))
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func (gm gammaMarket) toModel() (model.Market, error) {
	if gm.Slug == "" {
		return model.Market{}, fmt.Errorf("missing slug")
	}

	m := model.Market{
		Slug:         gm.Slug,
		Question:     gm.Question,
		ConditionID:  gm.ConditionID,
		Category:     gm.Category,
		EndDate:      gm.EndDate,
		Active:       gm.Active,
		Closed:       gm.Closed,
		VolumeCached: decimal.NewFromFloat(gm.VolumeNum),
		Liquidity:    decimal.NewFromFloat(gm.LiquidityNum),
	}

	// clobTokenIds is a JSON array encoded as a string: ["yes","no"].
	if gm.ClobTokenIDs != "" {
		var ids []string
		if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &ids); err != nil {
			return model.Market{}, fmt.Errorf("parse clobTokenIds: %w", err)
		}
		if len(ids) > 0 {
			m.YesTokenID = ids[0]
		}
		if len(ids) > 1 {
			m.NoTokenID = ids[1]
		}
	}

	// A closed market with settled outcome prices is resolved; ["1","0"]
	// means YES won.
	if gm.Closed && gm.OutcomePrices != "" {
		var prices []string
		if err := json.Unmarshal([]byte(gm.OutcomePrices), &prices); err == nil && len(prices) >= 2 {
			switch {
			case prices[0] == "1":
				m.Resolved = true
				m.ResolutionOutcome = model.OutcomeYes
			case prices[1] == "1":
				m.Resolved = true
				m.ResolutionOutcome = model.OutcomeNo
			}
		}
	}

	return m, nil
}

// SyncStore is the store surface the syncer writes through.
type SyncStore interface {
	UpsertMarkets(ctx context.Context, markets []model.Market) error
	AttachMarketRefs(ctx context.Context) (int64, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
}

// Syncer pulls market metadata on a schedule, persists it, backfills market
// linkage on previously unattributed trades, and rebuilds the resolver.
type Syncer struct {
	client   *Client
	store    SyncStore
	resolver *Resolver
	limit    int
	logger   *zap.Logger
}

func NewSyncer(client *Client, store SyncStore, resolver *Resolver, limit int, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 100
	}
	return &Syncer{client: client, store: store, resolver: resolver, limit: limit, logger: logger}
}

// Sync performs one metadata pass.
func (s *Syncer) Sync(ctx context.Context) error {
	markets, err := s.client.FetchMarkets(ctx, s.limit, true)
	if err != nil {
		return fmt.Errorf("sync markets: %w", err)
	}
	if len(markets) == 0 {
		s.logger.Warn("metadata sync returned no markets")
		return nil
	}

	if err := s.store.UpsertMarkets(ctx, markets); err != nil {
		return fmt.Errorf("upsert markets: %w", err)
	}

	attached, err := s.store.AttachMarketRefs(ctx)
	if err != nil {
		return fmt.Errorf("attach market refs: %w", err)
	}

	all, err := s.store.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	s.resolver.Rebuild(all)

	s.logger.Info("markets synced",
		zap.Int("fetched", len(markets)),
		zap.Int64("trades_attached", attached),
		zap.Int("tokens_indexed", s.resolver.Len()),
	)
	return nil
}

// Run resyncs on every tick until ctx is cancelled. Callers do the first
// Sync themselves so startup ordering stays explicit.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("market sync failed", zap.Error(err))
			}
		}
	}
}
