package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

// LedgerReader is the slice of warehouse.Service the reports read from.
type LedgerReader interface {
	ClientsWithUnpaidBalance(ctx context.Context) []warehouse.Client
	PendingBackorders(ctx context.Context) []warehouse.BackorderEntry
	ListProducts(ctx context.Context) []warehouse.Product
}

// UnpaidBalanceRow is one client owing money.
type UnpaidBalanceRow struct {
	ClientID       string          `json:"client_id"`
	Name           string          `json:"name"`
	Balance        decimal.Decimal `json:"balance"`
	BalanceDisplay string          `json:"balance_display"`
	Invoices       int             `json:"invoices"`
}

// UnpaidBalanceReport lists clients with a positive balance.
type UnpaidBalanceReport struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	Total        decimal.Decimal    `json:"total"`
	TotalDisplay string             `json:"total_display"`
	Rows         []UnpaidBalanceRow `json:"rows"`
}

// BackorderLine is one pending entry in fill order.
type BackorderLine struct {
	EntryID   string    `json:"entry_id"`
	OrderID   string    `json:"order_id"`
	ClientID  string    `json:"client_id"`
	Quantity  int       `json:"quantity"`
	Requested int       `json:"requested"`
	QueuedAt  time.Time `json:"queued_at"`
}

// ProductBackorders groups pending entries of one product.
type ProductBackorders struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	PendingUnits int             `json:"pending_units"`
	Exposure     decimal.Decimal `json:"exposure"`
	Entries      []BackorderLine `json:"entries"`
}

// BackorderReport lists products with outstanding demand.
type BackorderReport struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	PendingUnits int                 `json:"pending_units"`
	Products     []ProductBackorders `json:"products"`
}

// Service builds and caches reports.
type Service struct {
	ledger LedgerReader
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the report service. cache may be nil.
func NewService(ledger LedgerReader, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// UnpaidBalances returns the unpaid balance report.
func (s *Service) UnpaidBalances(ctx context.Context) (UnpaidBalanceReport, error) {
	var report UnpaidBalanceReport
	if err := s.cached(ctx, "unpaid_balances", &report, s.buildUnpaid); err != nil {
		return UnpaidBalanceReport{}, err
	}
	return report, nil
}

// Backorders returns the pending backorder report.
func (s *Service) Backorders(ctx context.Context) (BackorderReport, error) {
	var report BackorderReport
	if err := s.cached(ctx, "backorders", &report, s.buildBackorders); err != nil {
		return BackorderReport{}, err
	}
	return report, nil
}

// LedgerChanged invalidates every cached report. Errors are logged only;
// stale entries still expire with the TTL.
func (s *Service) LedgerChanged(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) cached(ctx context.Context, name string, dest any, build func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, name)
	if err != nil {
		return fmt.Errorf("reports: cache key: %w", err)
	}
	val, err, _ := singleflightBuild(ctx, key, func(ctx context.Context) (any, error) {
		raw, hit, err := s.cache.FetchRaw(ctx, key, build)
		if err == nil && !hit {
			s.logger.Debug("report rebuilt", slog.String("report", name), slog.String("key", key))
		}
		return raw, err
	})
	if err != nil {
		return fmt.Errorf("reports: %s: %w", name, err)
	}
	if err := json.Unmarshal(val.([]byte), dest); err != nil {
		return fmt.Errorf("reports: %s: decode: %w", name, err)
	}
	return nil
}

func (s *Service) buildUnpaid(ctx context.Context) (any, error) {
	clients := s.ledger.ClientsWithUnpaidBalance(ctx)
	report := UnpaidBalanceReport{GeneratedAt: s.now(), Total: decimal.Zero, Rows: make([]UnpaidBalanceRow, 0, len(clients))}
	for _, c := range clients {
		report.Total = report.Total.Add(c.Balance)
		report.Rows = append(report.Rows, UnpaidBalanceRow{
			ClientID:       c.ID,
			Name:           c.Name,
			Balance:        c.Balance,
			BalanceDisplay: warehouse.FormatMoney(c.Balance),
			Invoices:       len(c.InvoiceIDs),
		})
	}
	report.TotalDisplay = warehouse.FormatMoney(report.Total)
	return report, nil
}

func (s *Service) buildBackorders(ctx context.Context) (any, error) {
	products := s.ledger.ListProducts(ctx)
	byID := make(map[string]warehouse.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	report := BackorderReport{GeneratedAt: s.now(), Products: []ProductBackorders{}}
	index := map[string]int{}
	for _, entry := range s.ledger.PendingBackorders(ctx) {
		i, ok := index[entry.ProductID]
		if !ok {
			p := byID[entry.ProductID]
			report.Products = append(report.Products, ProductBackorders{ProductID: p.ID, Name: p.Name, Exposure: decimal.Zero})
			i = len(report.Products) - 1
			index[entry.ProductID] = i
		}
		group := &report.Products[i]
		group.PendingUnits += entry.Quantity
		group.Exposure = group.Exposure.Add(byID[entry.ProductID].Price.Mul(decimal.NewFromInt(int64(entry.Quantity))))
		group.Entries = append(group.Entries, BackorderLine{
			EntryID:   entry.ID,
			OrderID:   entry.OrderID,
			ClientID:  entry.ClientID,
			Quantity:  entry.Quantity,
			Requested: entry.Requested,
			QueuedAt:  entry.CreatedAt,
		})
		report.PendingUnits += entry.Quantity
	}
	return report, nil
}
