package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/warehouse/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives engine outcomes for instrumentation.
type MetricsPort interface {
	ObserveAllocation(result AllocationResult)
	ObserveShipment(result ShipmentResult)
}

// ChangeNotifier is told after every successful mutation, e.g. to drop
// cached read models. It runs after the service lock is released.
type ChangeNotifier interface {
	LedgerChanged(ctx context.Context)
}

// PaymentGuard vets a payment against the client's account before it is
// applied. Guards run under the service lock.
type PaymentGuard func(client Client, amount decimal.Decimal) error

// RejectOverpayment refuses payments larger than the outstanding balance.
func RejectOverpayment(client Client, amount decimal.Decimal) error {
	if amount.GreaterThan(client.Balance) {
		return fmt.Errorf("%w: paying %s against %s", ErrOverpayment, FormatMoney(amount), FormatMoney(client.Balance))
	}
	return nil
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Snapshots SnapshotPort
	Audit     AuditPort
	Metrics   MetricsPort
	Changes   ChangeNotifier
}

// Service is the single writer over a Ledger. Every operation holds mu for
// its whole duration and returns copies.
type Service struct {
	mu      sync.Mutex
	ledger  *Ledger
	logger  *slog.Logger
	changed bool

	snapshots SnapshotPort
	audit     AuditPort
	metrics   MetricsPort
	changes   ChangeNotifier
}

// NewService builds Service.
func NewService(ledger *Ledger, logger *slog.Logger, cfg ServiceConfig) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:    ledger,
		logger:    logger,
		snapshots: cfg.Snapshots,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		changes:   cfg.Changes,
	}
}

// AddClient registers a client with a zero balance.
func (s *Service) AddClient(ctx context.Context, name string) (Client, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	c, err := s.ledger.addClient(name)
	if err != nil {
		return Client{}, err
	}
	s.committed(ctx, "client.create", "client", c.ID, map[string]any{"name": c.Name})
	return cloneClient(c), nil
}

// AddSupplier registers a supplier.
func (s *Service) AddSupplier(ctx context.Context, name string) (Supplier, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	sup, err := s.ledger.addSupplier(name)
	if err != nil {
		return Supplier{}, err
	}
	s.committed(ctx, "supplier.create", "supplier", sup.ID, map[string]any{"name": sup.Name})
	return cloneSupplier(sup), nil
}

// AddProduct registers a product with no stock.
func (s *Service) AddProduct(ctx context.Context, name string, price decimal.Decimal) (Product, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	p, err := s.ledger.addProduct(name, price)
	if err != nil {
		return Product{}, err
	}
	s.committed(ctx, "product.create", "product", p.ID, map[string]any{"name": p.Name, "price": p.Price.StringFixed(2)})
	return cloneProduct(p), nil
}

func (s *Service) FindClient(_ context.Context, clientID string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return Client{}, err
	}
	return cloneClient(c), nil
}

func (s *Service) FindSupplier(_ context.Context, supplierID string) (Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, err := s.ledger.supplier(supplierID)
	if err != nil {
		return Supplier{}, err
	}
	return cloneSupplier(sup), nil
}

func (s *Service) FindProduct(_ context.Context, productID string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ledger.product(productID)
	if err != nil {
		return Product{}, err
	}
	return cloneProduct(p), nil
}

func (s *Service) FindOrder(_ context.Context, clientID, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, o, err := s.ledger.order(clientID, orderID)
	if err != nil {
		return Order{}, err
	}
	return cloneOrder(o), nil
}

func (s *Service) FindInvoice(_ context.Context, clientID, invoiceID string) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.ledger.invoice(clientID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	return cloneInvoice(inv), nil
}

// ListClients returns clients in registration order.
func (s *Service) ListClients(_ context.Context) []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Client, 0, len(s.ledger.clientIDs))
	for _, id := range s.ledger.clientIDs {
		out = append(out, cloneClient(s.ledger.clients[id]))
	}
	return out
}

func (s *Service) ListSuppliers(_ context.Context) []Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Supplier, 0, len(s.ledger.supplierIDs))
	for _, id := range s.ledger.supplierIDs {
		out = append(out, cloneSupplier(s.ledger.suppliers[id]))
	}
	return out
}

func (s *Service) ListProducts(_ context.Context) []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.ledger.productIDs))
	for _, id := range s.ledger.productIDs {
		out = append(out, cloneProduct(s.ledger.products[id]))
	}
	return out
}

// AssociateSupplier links a product and a supplier in both directions.
func (s *Service) AssociateSupplier(ctx context.Context, productID, supplierID string) error {
	s.mu.Lock()
	defer s.unlock(ctx)
	if err := s.ledger.associate(productID, supplierID); err != nil {
		return err
	}
	s.committed(ctx, "product.supplier.assign", "product", productID, map[string]any{"supplier_id": supplierID})
	return nil
}

// DisassociateSupplier removes the link created by AssociateSupplier.
func (s *Service) DisassociateSupplier(ctx context.Context, productID, supplierID string) error {
	s.mu.Lock()
	defer s.unlock(ctx)
	if err := s.ledger.disassociate(productID, supplierID); err != nil {
		return err
	}
	s.committed(ctx, "product.supplier.unassign", "product", productID, map[string]any{"supplier_id": supplierID})
	return nil
}

// CreateOrder opens an empty order for the client.
func (s *Service) CreateOrder(ctx context.Context, clientID string) (string, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	o, err := s.ledger.createOrder(clientID)
	if err != nil {
		return "", err
	}
	s.committed(ctx, "order.create", "order", o.ID, map[string]any{"client_id": clientID})
	return o.ID, nil
}

// AddOrderLine appends a product request to an unprocessed order.
func (s *Service) AddOrderLine(ctx context.Context, clientID, orderID, productID string, qty int) (LineItem, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	line, err := s.ledger.addOrderLine(clientID, orderID, productID, qty)
	if err != nil {
		return LineItem{}, err
	}
	s.committed(ctx, "order.line.add", "order", orderID, map[string]any{"product_id": productID, "quantity": qty})
	return line, nil
}

// ProcessOrder allocates stock to the order, billing what can be shipped and
// backordering the rest. An order is processed at most once.
func (s *Service) ProcessOrder(ctx context.Context, clientID, orderID string) (AllocationResult, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	result, err := s.ledger.allocate(clientID, orderID)
	if err != nil {
		return AllocationResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocation(result)
	}
	meta := map[string]any{
		"client_id":         clientID,
		"billed_units":      result.BilledUnits(),
		"backordered_units": result.BackorderedUnits(),
	}
	if result.Invoice != nil {
		meta["invoice_id"] = result.Invoice.ID
		meta["invoice_total"] = result.Invoice.Total().StringFixed(2)
	}
	s.committed(ctx, "order.process", "order", orderID, meta)
	s.logger.Info("order allocated",
		slog.String("order_id", orderID),
		slog.String("client_id", clientID),
		slog.Int("billed_units", result.BilledUnits()),
		slog.Int("backordered_units", result.BackorderedUnits()),
	)
	return result, nil
}

// ReceiveShipment routes incoming units to backorders (target first, then
// FIFO) and stocks the remainder.
func (s *Service) ReceiveShipment(ctx context.Context, productID string, qty int, target FillTarget) (ShipmentResult, error) {
	s.mu.Lock()
	defer s.unlock(ctx)
	result, err := s.ledger.receiveShipment(productID, qty, target)
	if err != nil {
		return ShipmentResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveShipment(result)
	}
	meta := map[string]any{
		"received": result.Received,
		"filled":   result.FilledUnits(),
		"stocked":  result.Stocked,
	}
	if !target.IsFIFO() {
		meta["target_entry_id"] = target.EntryID()
	}
	s.committed(ctx, "shipment.receive", "product", productID, meta)
	s.logger.Info("shipment received",
		slog.String("product_id", productID),
		slog.Int("received", result.Received),
		slog.Int("fills", len(result.Fills)),
		slog.Int("stocked", result.Stocked),
	)
	return result, nil
}

// AcceptPayment credits the client's account. Guards may veto the payment
// before anything changes.
func (s *Service) AcceptPayment(ctx context.Context, clientID string, amount decimal.Decimal, guards ...PaymentGuard) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.unlock(ctx)
	c, err := s.ledger.client(clientID)
	if err != nil {
		return Transaction{}, err
	}
	for _, guard := range guards {
		if err := guard(cloneClient(c), amount); err != nil {
			return Transaction{}, err
		}
	}
	tx, err := c.acceptPayment(amount, s.ledger.now())
	if err != nil {
		return Transaction{}, err
	}
	s.committed(ctx, "payment.accept", "client", clientID, map[string]any{"amount": amount.StringFixed(2)})
	return tx, nil
}

// ProductBackorders lists pending entries for a product in fill order.
func (s *Service) ProductBackorders(_ context.Context, productID string) ([]BackorderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ledger.product(productID)
	if err != nil {
		return nil, err
	}
	return s.ledger.productBackorders(p), nil
}

// OrderBackorders lists pending entries created by an order.
func (s *Service) OrderBackorders(_ context.Context, clientID, orderID string) ([]BackorderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, o, err := s.ledger.order(clientID, orderID)
	if err != nil {
		return nil, err
	}
	return s.ledger.orderBackorders(o), nil
}

// PendingBackorders lists every pending entry, grouped by product in
// registration order and FIFO within a product.
func (s *Service) PendingBackorders(_ context.Context) []BackorderEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BackorderEntry, 0, len(s.ledger.backorders))
	for _, id := range s.ledger.productIDs {
		out = append(out, s.ledger.productBackorders(s.ledger.products[id])...)
	}
	return out
}

func (s *Service) ClientInvoices(_ context.Context, clientID string) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return nil, err
	}
	out := make([]Invoice, 0, len(c.InvoiceIDs))
	for _, id := range c.InvoiceIDs {
		out = append(out, cloneInvoice(s.ledger.invoices[id]))
	}
	return out, nil
}

func (s *Service) ClientTransactions(_ context.Context, clientID string) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return nil, err
	}
	return append([]Transaction{}, c.Transactions...), nil
}

func (s *Service) ClientOrders(_ context.Context, clientID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(c.OrderIDs))
	for _, id := range c.OrderIDs {
		out = append(out, cloneOrder(s.ledger.orders[id]))
	}
	return out, nil
}

// ClientBackorderedOrders lists the client's orders that still have pending
// backorder entries.
func (s *Service) ClientBackorderedOrders(_ context.Context, clientID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return nil, err
	}
	out := []Order{}
	for _, id := range c.OrderIDs {
		if o := s.ledger.orders[id]; len(o.Backorders) > 0 {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// ClientsWithUnpaidBalance lists clients whose balance is above zero.
func (s *Service) ClientsWithUnpaidBalance(_ context.Context) []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Client{}
	for _, id := range s.ledger.clientIDs {
		if c := s.ledger.clients[id]; c.Balance.IsPositive() {
			out = append(out, cloneClient(c))
		}
	}
	return out
}

func (s *Service) Balance(_ context.Context, clientID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ledger.client(clientID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Balance, nil
}

// Summary describes the current ledger.
func (s *Service) Summary(_ context.Context) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.ledger.Export())
}

// Save persists a snapshot of the whole ledger.
func (s *Service) Save(ctx context.Context) (SnapshotMeta, error) {
	if s.snapshots == nil {
		return SnapshotMeta{}, errors.New("warehouse: no snapshot store configured")
	}
	s.mu.Lock()
	state := s.ledger.Export()
	s.mu.Unlock()

	meta, err := s.snapshots.Save(ctx, state)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.ID),
		slog.Int("clients", len(state.Clients)),
		slog.Int("backorders", len(state.Backorders)),
	)
	return meta, nil
}

// Load replaces the in-memory ledger with the latest stored snapshot.
func (s *Service) Load(ctx context.Context) (SnapshotMeta, error) {
	if s.snapshots == nil {
		return SnapshotMeta{}, errors.New("warehouse: no snapshot store configured")
	}
	state, meta, err := s.snapshots.Latest(ctx)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("load snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.unlock(ctx)
	restored, err := Restore(state, WithClock(s.ledger.now))
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("restore snapshot %s: %w", meta.ID, err)
	}
	s.ledger = restored
	s.changed = true
	s.logger.Info("snapshot restored", slog.String("snapshot_id", meta.ID), slog.Time("taken_at", meta.TakenAt))
	return meta, nil
}

// committed runs the post-mutation hooks under the lock. Audit failures are
// logged, never returned: the ledger has already changed. Change
// notification is deferred to unlock.
func (s *Service) committed(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   entity,
			EntityID: entityID,
			Meta:     meta,
			At:       s.ledger.now(),
		})
		if err != nil {
			s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	s.changed = true
}

// unlock releases mu and then tells the notifier about any committed
// mutation, so a slow notifier never blocks other callers.
func (s *Service) unlock(ctx context.Context) {
	changed := s.changed
	s.changed = false
	s.mu.Unlock()
	if changed {
		s.notify(ctx)
	}
}

func (s *Service) notify(ctx context.Context) {
	if s.changes != nil {
		s.changes.LedgerChanged(ctx)
	}
}
