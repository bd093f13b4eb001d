package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// Gate resolves the bearer credential for the current session.
type Gate interface {
	Token(ctx context.Context) (string, bool)
}

// Remote is the cart backend. Implementations return *Error for failures they
// can classify.
type Remote interface {
	GetCart(ctx context.Context, token string) (Reply, error)
	AddItem(ctx context.Context, token string, in AddItemInput) (Reply, error)
	UpdateItem(ctx context.Context, token, itemID string, quantity int) (Reply, error)
	RemoveItem(ctx context.Context, token, itemID string) (Reply, error)
	Checkout(ctx context.Context, token string, req CheckoutRequest) (CheckoutResult, error)
}

type CheckoutEvent struct {
	SessionID  string
	Generation uint64
	Items      []LineItem
	Totals     Totals
	Result     CheckoutResult
}

type ResetEvent struct {
	SessionID  string
	Generation uint64
	Reason     string
}

// Notifier receives cart lifecycle events. Failures are logged and ignored.
type Notifier interface {
	PublishCartCheckedOut(ctx context.Context, ev CheckoutEvent) error
	PublishCartReset(ctx context.Context, ev ResetEvent) error
}

// Policy decides how overlapping mutations on one cart interact.
type Policy string

const (
	// PolicySerialized runs one operation at a time, so quantity deltas are
	// always applied to the previous server response.
	PolicySerialized Policy = "serialized"
	// PolicyConcurrent lets requests race; the last response to arrive wins.
	PolicyConcurrent Policy = "concurrent"
)

func ParsePolicy(v string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicySerialized:
		return PolicySerialized, nil
	case PolicyConcurrent:
		return PolicyConcurrent, nil
	default:
		return "", fmt.Errorf("unknown mutation policy %q", v)
	}
}

type Options struct {
	SessionID string
	Timeout   time.Duration
	Policy    Policy
	// Pricing overrides DefaultPricing when set. A zero rate or fee is kept.
	Pricing   *Pricing
	Notifier  Notifier
	Logger    *zap.Logger
}

// Dispatcher runs cart operations: gate check, mark loading, remote call,
// then commit the server snapshot or the normalized error.
type Dispatcher struct {
	store  *Store
	gate   Gate
	remote Remote

	sessionID string
	timeout   time.Duration
	policy    Policy
	pricing   Pricing
	notifier  Notifier
	logger    *zap.Logger

	serial sync.Mutex
}

func NewDispatcher(store *Store, gate Gate, remote Remote, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Policy == "" {
		opts.Policy = PolicySerialized
	}
	pricing := DefaultPricing()
	if opts.Pricing != nil {
		pricing = *opts.Pricing
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		store:     store,
		gate:      gate,
		remote:    remote,
		sessionID: opts.SessionID,
		timeout:   opts.Timeout,
		policy:    opts.Policy,
		pricing:   pricing,
		notifier:  opts.Notifier,
		logger:    opts.Logger.With(zap.String("session_id", opts.SessionID)),
	}
}

func (d *Dispatcher) Store() *Store { return d.store }

func (d *Dispatcher) Pricing() Pricing { return d.pricing }

// Totals computes the derived view of the current snapshot.
func (d *Dispatcher) Totals() Totals {
	return ComputeTotals(d.store.Snapshot(), d.pricing)
}

func (d *Dispatcher) FetchCart(ctx context.Context) error {
	return d.mutate(ctx, "fetchCart", false, func(ctx context.Context, token string) (Reply, error) {
		return d.remote.GetCart(ctx, token)
	})
}

func (d *Dispatcher) AddItem(ctx context.Context, in AddItemInput) error {
	return d.mutate(ctx, "addItem", true, func(ctx context.Context, token string) (Reply, error) {
		if strings.TrimSpace(in.ProductRef) == "" {
			return Reply{}, NewError(KindValidation, "", "productRef is required", nil)
		}
		if in.Quantity < 1 {
			return Reply{}, NewError(KindValidation, "", "quantity must be at least 1", nil)
		}
		return d.remote.AddItem(ctx, token, in)
	})
}

// UpdateItemQuantity applies delta to the cached quantity, clamped to 1.
func (d *Dispatcher) UpdateItemQuantity(ctx context.Context, itemID string, delta int) error {
	return d.mutate(ctx, "updateItemQuantity", true, func(ctx context.Context, token string) (Reply, error) {
		current, ok := d.store.Snapshot().Find(itemID)
		if !ok {
			return Reply{}, NewError(KindNotFound, "", "cart item "+itemID+" not found", nil)
		}
		return d.remote.UpdateItem(ctx, token, itemID, NextQuantity(current.Quantity, delta))
	})
}

// SetItemQuantity sends an absolute quantity, clamped to 1.
func (d *Dispatcher) SetItemQuantity(ctx context.Context, itemID string, quantity int) error {
	return d.mutate(ctx, "setItemQuantity", true, func(ctx context.Context, token string) (Reply, error) {
		if _, ok := d.store.Snapshot().Find(itemID); !ok {
			return Reply{}, NewError(KindNotFound, "", "cart item "+itemID+" not found", nil)
		}
		return d.remote.UpdateItem(ctx, token, itemID, max(1, quantity))
	})
}

func (d *Dispatcher) RemoveItem(ctx context.Context, itemID string) error {
	return d.mutate(ctx, "removeItem", true, func(ctx context.Context, token string) (Reply, error) {
		return d.remote.RemoveItem(ctx, token, itemID)
	})
}

// Checkout posts the order and resets the store once the backend confirms it.
func (d *Dispatcher) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	const op = "checkout"

	token, ok := d.gate.Token(ctx)
	if !ok {
		return CheckoutResult{}, d.loginRequired(op)
	}
	if problems := req.Validate(); len(problems) > 0 {
		err := NewError(KindValidation, op, describeProblems(problems), nil)
		d.store.RecordError(err)
		return CheckoutResult{}, err
	}

	unlock := d.lock()
	defer unlock()

	gen := d.store.Begin()
	before := d.store.Snapshot()

	start := time.Now()
	reqCtx, done := d.requestContext(ctx)
	res, err := d.remote.Checkout(reqCtx, token, req)
	done()
	if err != nil {
		return CheckoutResult{}, d.fail(op, gen, start, err)
	}

	if d.store.Generation() != gen {
		d.logger.Warn("discarding stale checkout response", zap.Uint64("generation", gen))
		return CheckoutResult{}, NewError(KindCanceled, op, "cart was reset while checkout was in flight", nil)
	}

	d.store.Reset()
	d.logger.Info("checkout completed",
		zap.String("order_id", res.OrderID),
		zap.Int("items", len(before.Items)),
		zap.Duration("duration", time.Since(start)),
	)

	if d.notifier != nil {
		ev := CheckoutEvent{
			SessionID:  d.sessionID,
			Generation: gen,
			Items:      before.Items,
			Totals:     ComputeTotals(before, d.pricing),
			Result:     res,
		}
		if err := d.notifier.PublishCartCheckedOut(ctx, ev); err != nil {
			d.logger.Warn("publish cart checked out", zap.Error(err))
		}
	}
	return res, nil
}

// Reset discards the cart (logout). In-flight requests are cancelled and their
// responses dropped.
func (d *Dispatcher) Reset(ctx context.Context, reason string) {
	d.store.Reset()
	gen := d.store.Generation()
	d.logger.Info("cart reset", zap.String("reason", reason), zap.Uint64("generation", gen))

	if d.notifier != nil {
		ev := ResetEvent{SessionID: d.sessionID, Generation: gen, Reason: reason}
		if err := d.notifier.PublishCartReset(ctx, ev); err != nil {
			d.logger.Warn("publish cart reset", zap.Error(err))
		}
	}
}

// NextQuantity returns max(1, current+delta). The sum saturates instead of
// wrapping, so a huge delta can never turn into a small quantity.
func NextQuantity(current, delta int) int {
	switch {
	case delta > 0 && current > math.MaxInt-delta:
		return math.MaxInt
	case delta < 0 && current < math.MinInt-delta:
		return 1
	}
	return max(1, current+delta)
}

type call func(ctx context.Context, token string) (Reply, error)

// mutate runs a call whose success commits a cart snapshot. When keepOnMissing
// is set, a successful response without an items envelope keeps the cached items.
func (d *Dispatcher) mutate(ctx context.Context, op string, keepOnMissing bool, fn call) error {
	token, ok := d.gate.Token(ctx)
	if !ok {
		return d.loginRequired(op)
	}

	unlock := d.lock()
	defer unlock()

	gen := d.store.Begin()
	start := time.Now()

	reqCtx, done := d.requestContext(ctx)
	reply, err := fn(reqCtx, token)
	done()
	if err != nil {
		return d.fail(op, gen, start, err)
	}

	items := reply.Items
	if !reply.HasItems {
		if keepOnMissing {
			items = d.store.Snapshot().Items
		} else {
			items = []LineItem{}
		}
	}

	if !d.store.CommitItems(gen, items) {
		d.logger.Warn("discarding stale response", zap.String("op", op), zap.Uint64("generation", gen))
		return NewError(KindCanceled, op, "cart was reset while the request was in flight", nil)
	}

	d.logger.Debug("cart operation committed",
		zap.String("op", op),
		zap.Int("items", len(items)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (d *Dispatcher) loginRequired(op string) error {
	err := NewError(KindLoginRequired, op, "login required", nil)
	d.store.RecordError(err)
	d.logger.Debug("cart operation rejected without session", zap.String("op", op))
	return err
}

func (d *Dispatcher) fail(op string, gen uint64, start time.Time, err error) error {
	cerr := normalize(op, err)

	if cerr.Kind == KindCanceled {
		d.store.Abort(gen)
		d.logger.Info("cart operation cancelled", zap.String("op", op), zap.Duration("duration", time.Since(start)))
		return cerr
	}

	if !d.store.CommitError(gen, cerr) {
		d.logger.Warn("discarding stale failure", zap.String("op", op), zap.Error(cerr))
		return NewError(KindCanceled, op, "cart was reset while the request was in flight", cerr)
	}

	d.logger.Warn("cart operation failed",
		zap.String("op", op),
		zap.String("kind", string(cerr.Kind)),
		zap.Int("status", cerr.Status),
		zap.Duration("duration", time.Since(start)),
		zap.Error(cerr),
	)
	return cerr
}

// lock serializes mutations under PolicySerialized. Under PolicyConcurrent
// requests overlap, each computes from the cached snapshot it saw, and the
// response that resolves last is the one left in the store.
func (d *Dispatcher) lock() func() {
	if d.policy != PolicySerialized {
		return func() {}
	}
	d.serial.Lock()
	return d.serial.Unlock
}

func (d *Dispatcher) requestContext(ctx context.Context) (context.Context, func()) {
	tracked, release := d.store.track(ctx)
	timed, cancel := context.WithTimeout(tracked, d.timeout)
	return timed, func() {
		cancel()
		release()
	}
}

func normalize(op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		out := *ce
		out.Op = op
		return &out
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewError(KindCanceled, op, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindNetwork, op, "request timed out", err)
	default:
		return NewError(KindServer, op, err.Error(), err)
	}
}

func describeProblems(problems map[string]string) string {
	fields := make([]string, 0, len(problems))
	for f := range problems {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, problems[f])
	}
	return strings.Join(msgs, "; ")
}
