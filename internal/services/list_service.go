package services

import (
	"context"
	"errors"
	"fmt"

	"budgetlist/internal/amqp"
	"budgetlist/internal/cache"
	"budgetlist/internal/core"
	"budgetlist/internal/ledger"
	"budgetlist/internal/log"
	"budgetlist/internal/metrics"
	"budgetlist/internal/store"
)

// AlertPublisher delivers budget alerts. *amqp.Client implements it.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// ListService orchestrates list and item operations on the List Store and
// announces budget status changes over AMQP.
type ListService struct {
	store   store.Store
	ledger  *ledger.Ledger
	alerts  AlertPublisher
	metrics *metrics.Metrics
	logger  *log.Logger
	events  *log.StructuredLogger
}

type Option func(*listServiceOptions)

type listServiceOptions struct {
	metrics *metrics.Metrics
	logger  *log.Logger
	totals  cache.Cache[ledger.CachedTotals]
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *listServiceOptions) { o.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(o *listServiceOptions) { o.logger = l }
}

// WithTotalsCache sets the cache for derived list totals.
func WithTotalsCache(c cache.Cache[ledger.CachedTotals]) Option {
	return func(o *listServiceOptions) { o.totals = c }
}

// NewListService wires a ledger over s. alerts may be nil, in which case
// status changes are only logged.
func NewListService(s store.Store, alerts AlertPublisher, opts ...Option) *ListService {
	o := listServiceOptions{logger: log.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	svc := &ListService{
		store:   s,
		alerts:  alerts,
		metrics: o.metrics,
		logger:  o.logger.WithComponent(log.ComponentLists),
		events:  log.NewStructuredLogger(o.logger),
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(o.logger),
		ledger.WithObserver(svc.onChange),
	}
	if o.totals != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithCache(o.totals))
	}
	svc.ledger = ledger.New(s, ledgerOpts...)
	return svc
}

func (s *ListService) CreateList(ctx context.Context, owner string, in core.NewList) (*core.Snapshot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	l, err := s.store.CreateList(ctx, owner, in)
	if err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	s.logger.InfoContext(ctx, "List created",
		log.NewFields().WithList(l.ID, owner).WithOperation(log.OpCreate).ToSlice()...)
	snap := core.Summarize(*l)
	return &snap, nil
}

func (s *ListService) GetList(ctx context.Context, owner, listID string) (*core.Snapshot, error) {
	return s.ledger.Snapshot(ctx, owner, listID)
}

// ListLists returns the owner's lists newest first.
func (s *ListService) ListLists(ctx context.Context, owner string) ([]core.Snapshot, error) {
	lists, err := s.store.ListLists(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	out := make([]core.Snapshot, 0, len(lists))
	for _, l := range lists {
		out = append(out, core.Summarize(l))
	}
	return out, nil
}

func (s *ListService) UpdateList(ctx context.Context, owner, listID string, patch core.ListPatch) (*core.Snapshot, error) {
	l, err := s.ledger.UpdateList(ctx, owner, listID, patch)
	if err != nil {
		return nil, err
	}
	snap := core.Summarize(*l)
	return &snap, nil
}

func (s *ListService) DeleteList(ctx context.Context, owner, listID string) error {
	if err := s.ledger.DeleteList(ctx, owner, listID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "List deleted",
		log.NewFields().WithList(listID, owner).WithOperation(log.OpDelete).ToSlice()...)
	return nil
}

func (s *ListService) AddItem(ctx context.Context, owner, listID string, in core.NewItem) (*core.Item, error) {
	it, err := s.ledger.AddItem(ctx, owner, listID, in)
	if errors.Is(err, core.ErrOverBudget) {
		s.metrics.OverBudgetRejected()
	}
	if err != nil {
		return nil, err
	}
	s.metrics.ItemAdded()
	return it, nil
}

func (s *ListService) UpdateItem(ctx context.Context, owner, listID, itemID string, patch core.ItemPatch) (*core.Item, error) {
	return s.ledger.UpdateItem(ctx, owner, listID, itemID, patch)
}

func (s *ListService) DeleteItem(ctx context.Context, owner, listID, itemID string) error {
	return s.ledger.DeleteItem(ctx, owner, listID, itemID)
}

// onChange runs after every committed mutation. Alerts are best effort: a
// failed publish never undoes the mutation.
func (s *ListService) onChange(ctx context.Context, c ledger.Change) {
	prev, cur := c.Before.Totals.Status, c.After.Totals.Status
	if prev == cur {
		return
	}
	s.events.LogBudgetChange(ctx, c.After.List.ID, c.Owner, prev.String(), cur.String(),
		c.After.Totals.Spent.Cents, c.After.List.Budget.Cents)

	if !cur.Alerting() || c.After.List.Provenance.IsLocal() {
		return
	}
	if s.alerts == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping budget alert",
			log.FieldListID, c.After.List.ID)
		return
	}

	msg := amqp.NewBudgetAlertMessage(c.Owner, prev, c.After)
	if err := s.alerts.PublishBudgetAlert(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish budget alert",
			log.NewFields().WithList(msg.ListID, c.Owner).WithError(err).WithOperation(log.OpPublish).ToSlice()...)
		return
	}
	s.metrics.AlertPublished(cur.String())
}

// Close releases the store.
func (s *ListService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close list service: %w", err)
	}
	return nil
}
