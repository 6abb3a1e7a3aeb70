package journal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

const commandBuffer = 64

// Store owns the journal state. All reads and writes go through a single
// goroutine consuming typed commands, so no locking is needed anywhere in the
// engine. Server calls that mutate data run one at a time: while one is in
// flight, further mutating commands are dropped with a notice.
type Store struct {
	logger   *logrus.Logger
	client   Client
	notifier Notifier
	userId   int

	cmds chan Command

	orders      []*Order
	byId        map[int]*Order
	stock       map[StockKey]decimal.Decimal
	openOrderId int

	inflight       bool
	pendingRefresh bool
	lenientAmounts bool

	lastActivity atomic.Int64

	now func() time.Time
}

type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(logger *logrus.Logger, client Client, userId int, opts ...Option) *Store {
	s := &Store{
		logger:         logger,
		client:         client,
		notifier:       NewLogNotifier(logger),
		userId:         userId,
		cmds:           make(chan Command, commandBuffer),
		byId:           make(map[int]*Order),
		stock:          make(map[StockKey]decimal.Decimal),
		lenientAmounts: config.LenientAmounts(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActivity.Store(s.now().Unix())
	return s
}

// Dispatch queues a command for the actor. Safe from any goroutine.
func (s *Store) Dispatch(cmd Command) {
	s.cmds <- cmd
}

// Run consumes commands until the context ends. It loads the journal once on
// startup before serving commands.
func (s *Store) Run(ctx context.Context) error {
	s.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			s.handle(ctx, cmd)
		}
	}
}

func (s *Store) handle(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case SetOrigin:
		s.applySetOrigin(c)
	case SetWriteoffAmount:
		s.applySetWriteoff(c)
	case CommitInventory:
		s.applyCommit(c)
	case IssueItem:
		s.applyIssueItem(c)
	case IssueOrder:
		s.applyIssueOrder(c)
	case OpenOrder:
		s.applyOpenOrder(ctx, c)
	case ApplyEvent:
		s.applyEvent(ctx, c.Event)
	case Refresh:
		s.applyRefresh(ctx, c)
	case actionResult:
		s.applyActionResult(ctx, c)
	case snapshotReq:
		c.reply <- s.buildView()
	default:
		s.logger.WithField("module", "journal").Warnf("unhandled command %T", cmd)
	}
}

func (s *Store) applyCommit(cmd CommitInventory) {
	if s.inflight {
		s.notifier.Notice(NoticeWarn, "another change is still being saved")
		return
	}
	req, ok := s.buildCommitRequest(cmd.Ref)
	if !ok {
		s.notifier.Notice(NoticeError, "item not found")
		return
	}
	s.touch()
	s.sendAction(req)
}

// sendAction runs the server call off the actor goroutine and posts the
// outcome back as a command. Callers must have checked the in-flight gate.
func (s *Store) sendAction(req ExecOrderItemActionRequest) {
	s.inflight = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := s.client.ExecOrderItemAction(ctx, req)
		if err == nil && !resp.Success {
			err = &actionError{message: resp.Message}
		}
		s.Dispatch(actionResult{err: err})
	}()
}

type actionError struct{ message string }

func (e *actionError) Error() string {
	if e.message == "" {
		return "action rejected by server"
	}
	return e.message
}

func (s *Store) applyActionResult(ctx context.Context, res actionResult) {
	s.inflight = false
	if res.err != nil {
		config.LogError(s.logger, "journal", "applyActionResult", "order item action failed", nil, res.err)
		s.notifier.Notice(NoticeError, "saving failed; the last change may be lost")
	}
	if s.pendingRefresh {
		s.pendingRefresh = false
		s.reload(ctx)
	}
}

func (s *Store) applyOpenOrder(ctx context.Context, cmd OpenOrder) {
	order := s.findOrder(cmd.OrderId)
	if order == nil {
		s.openOrderId = 0
		return
	}
	s.openOrderId = cmd.OrderId
	s.touch()
	if err := s.resolveBundles(ctx, order); err != nil {
		config.LogError(s.logger, "journal", "applyOpenOrder", "bundle lookup failed", cmd.OrderId, err)
		s.notifier.Notice(NoticeError, "could not load kit components")
	}
	if err := s.resolveStock(ctx, stockKeysForOrder(order)); err != nil {
		config.LogError(s.logger, "journal", "applyOpenOrder", "stock lookup failed", cmd.OrderId, err)
	}
}

// applyEvent folds one push update into local state. Unknown orders are logged
// and skipped; the periodic refresh will pick them up.
func (s *Store) applyEvent(ctx context.Context, event PushEvent) {
	switch event.Type {
	case EventItemsUpdate:
		order := s.findOrder(event.OrderId)
		if order == nil {
			s.logger.WithFields(logrus.Fields{
				"module":   "journal",
				"order_id": event.OrderId,
			}).Warn("items update for unknown order, skipping")
			return
		}
		priorRows := make(map[int][]BundleItem, len(order.Items))
		for _, item := range order.Items {
			if len(item.BundleItems) > 0 {
				priorRows[item.Id] = item.BundleItems
			}
		}
		order.Items = cloneItems(event.Items)
		// Events may carry items without their kit rows; keep the previous
		// rows so entered sourcing survives until the re-resolve below.
		for i := range order.Items {
			if len(order.Items[i].BundleItems) == 0 {
				order.Items[i].BundleItems = append([]BundleItem(nil), priorRows[order.Items[i].Id]...)
			}
		}
		order.Status = Classify(*order, s.now())
		if event.UpdatedBy != nil && event.UpdatedBy.UserId != s.userId {
			s.notifier.Notice(NoticeInfo, "order "+order.Key+" was updated by "+event.UpdatedBy.Name)
		}
		if s.openOrderId == order.Id {
			if err := s.resolveBundles(ctx, order); err != nil {
				config.LogError(s.logger, "journal", "applyEvent", "bundle refresh failed", order.Id, err)
			}
		}
	case EventStockUpdate:
		if s.openOrderId == 0 {
			return
		}
		order := s.findOrder(s.openOrderId)
		if order == nil {
			return
		}
		if err := s.resolveBundles(ctx, order); err != nil {
			config.LogError(s.logger, "journal", "applyEvent", "bundle refresh failed", s.openOrderId, err)
		}
		if err := s.resolveStock(ctx, stockKeysForOrder(order)); err != nil {
			config.LogError(s.logger, "journal", "applyEvent", "stock refresh failed", s.openOrderId, err)
		}
	default:
		s.logger.WithField("module", "journal").Warnf("unknown event type %q", event.Type)
	}
}

func (s *Store) applyRefresh(ctx context.Context, cmd Refresh) {
	if s.inflight {
		s.pendingRefresh = true
		return
	}
	if !cmd.Force {
		s.pendingRefresh = true
		return
	}
	s.pendingRefresh = false
	s.reload(ctx)
}

// reload replaces the whole order list from the server. Local per-item edits
// that were never committed do not survive a reload.
func (s *Store) reload(ctx context.Context) {
	orders, err := s.client.GetJournal(ctx)
	if err != nil {
		config.LogError(s.logger, "journal", "reload", "journal fetch failed", nil, err)
		s.notifier.Notice(NoticeError, "could not refresh the journal")
		return
	}
	s.orders = s.orders[:0]
	s.byId = make(map[int]*Order, len(orders))
	now := s.now()
	for i := range orders {
		order := orders[i]
		order.Status = Classify(order, now)
		s.orders = append(s.orders, &order)
		s.byId[order.Id] = &order
	}
	if s.openOrderId != 0 {
		if order := s.findOrder(s.openOrderId); order != nil {
			if err := s.resolveBundles(ctx, order); err != nil {
				config.LogError(s.logger, "journal", "reload", "bundle refresh failed", s.openOrderId, err)
			}
			_ = s.resolveStock(ctx, stockKeysForOrder(order))
		} else {
			s.openOrderId = 0
		}
	}
}

/* activity tracking for the idle-gated poller */

func (s *Store) touch() {
	s.lastActivity.Store(s.now().Unix())
}

// Touch records user activity. Called from outside the actor goroutine.
func (s *Store) Touch() {
	s.lastActivity.Store(time.Now().Unix())
}

func (s *Store) IdleFor() time.Duration {
	return time.Since(time.Unix(s.lastActivity.Load(), 0))
}

/* snapshots */

// View is an isolated copy of the store state for rendering and tests.
type View struct {
	Orders         []Order
	Stock          map[StockKey]decimal.Decimal
	OpenOrderId    int
	InFlight       bool
	PendingRefresh bool
}

func (v View) OrderById(id int) (Order, bool) {
	for _, o := range v.Orders {
		if o.Id == id {
			return o, true
		}
	}
	return Order{}, false
}

// Snapshot asks the actor for a copy of its state and waits for the answer.
func (s *Store) Snapshot() View {
	reply := make(chan View, 1)
	s.Dispatch(snapshotReq{reply: reply})
	return <-reply
}

func (s *Store) buildView() View {
	view := View{
		Orders:         make([]Order, 0, len(s.orders)),
		Stock:          make(map[StockKey]decimal.Decimal, len(s.stock)),
		OpenOrderId:    s.openOrderId,
		InFlight:       s.inflight,
		PendingRefresh: s.pendingRefresh,
	}
	for _, order := range s.orders {
		view.Orders = append(view.Orders, cloneOrder(*order))
	}
	for k, qty := range s.stock {
		view.Stock[k] = qty
	}
	return view
}

func cloneOrder(order Order) Order {
	order.Items = cloneItems(order.Items)
	return order
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item Item) Item {
	if item.BundleItems != nil {
		item.BundleItems = append([]BundleItem(nil), item.BundleItems...)
	}
	if item.Worklog != nil {
		worklog := make(map[string]WorklogEntry, len(item.Worklog))
		for k, v := range item.Worklog {
			worklog[k] = v
		}
		item.Worklog = worklog
	}
	return item
}
