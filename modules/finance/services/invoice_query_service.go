package services

import (
	"context"
	"sort"
	"time"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/worklist"
)

// WorklistItem is one enriched worklist row: the invoice, its derived
// settlement position, due state and priority rank.
type WorklistItem struct {
	Invoice    *invoice.Invoice
	Settlement *Settlement
	DueState   worklist.DueState
	Rank       int
}

type InvoiceQueryService struct {
	repo     invoice.Repository
	payments *PaymentService
	cfg      Config
	now      func() time.Time
}

func NewInvoiceQueryService(repo invoice.Repository, payments *PaymentService, cfg Config) *InvoiceQueryService {
	return &InvoiceQueryService{repo: repo, payments: payments, cfg: cfg, now: time.Now}
}

// Get returns one enriched invoice.
func (s *InvoiceQueryService) Get(ctx context.Context, id uint) (*WorklistItem, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	settlement, err := s.payments.Reconcile(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.enrich(inv, settlement), nil
}

// Find returns a page of enriched worklist rows plus the unpaginated total.
// Stored-column sorts are pushed to SQL; the default priority ordering and
// derived-field sorts need every matching row enriched first, so those fetch
// the full set, sort in memory and paginate afterwards. Standard users only
// see their own invoices.
func (s *InvoiceQueryService) Find(ctx context.Context, params *invoice.FindParams) ([]*WorklistItem, int64, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsPrivileged() {
		params.CreatedBy = &actor.ID
	}

	total, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	if params.SortBy.IsStored() {
		invoices, err := s.repo.Find(ctx, params)
		if err != nil {
			return nil, 0, err
		}
		items, err := s.enrichAll(ctx, invoices)
		if err != nil {
			return nil, 0, err
		}
		return items, total, nil
	}

	unpaged := *params
	unpaged.Limit = 0
	unpaged.Offset = 0
	invoices, err := s.repo.Find(ctx, &unpaged)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.enrichAll(ctx, invoices)
	if err != nil {
		return nil, 0, err
	}

	switch params.SortBy {
	case invoice.SortByRemainingBalance:
		sort.SliceStable(items, func(i, j int) bool {
			less := items[i].Settlement.Remaining.LessThan(items[j].Settlement.Remaining)
			if params.SortAsc {
				return less
			}
			return items[j].Settlement.Remaining.LessThan(items[i].Settlement.Remaining)
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return worklist.Less(
				worklist.Item{Status: items[i].Settlement.EffectiveStatus, DueState: items[i].DueState, CreatedAt: items[i].Invoice.CreatedAt},
				worklist.Item{Status: items[j].Settlement.EffectiveStatus, DueState: items[j].DueState, CreatedAt: items[j].Invoice.CreatedAt},
			)
		})
	}

	return paginate(items, params.Limit, params.Offset), total, nil
}

func (s *InvoiceQueryService) enrichAll(ctx context.Context, invoices []*invoice.Invoice) ([]*WorklistItem, error) {
	settlements, err := s.payments.ReconcileAll(ctx, invoices)
	if err != nil {
		return nil, err
	}
	items := make([]*WorklistItem, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, s.enrich(inv, settlements[inv.ID]))
	}
	return items, nil
}

func (s *InvoiceQueryService) enrich(inv *invoice.Invoice, settlement *Settlement) *WorklistItem {
	ds := worklist.Classify(settlement.EffectiveStatus, inv.DueDate, settlement.Remaining, s.now(), s.cfg.DueSoonDays)
	return &WorklistItem{
		Invoice:    inv,
		Settlement: settlement,
		DueState:   ds,
		Rank:       worklist.Rank(settlement.EffectiveStatus, ds),
	}
}

func paginate(items []*WorklistItem, limit, offset int) []*WorklistItem {
	if offset >= len(items) {
		return []*WorklistItem{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
