package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	catalogdto "github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-sync-service/internal/inventory"
	inventorydto "github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-sync-service/internal/logger"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	"go.uber.org/zap"
)

const (
	ReasonUnhandledType     = "unhandled_event_type"
	ReasonOrderNotCompleted = "order_not_completed"
)

// Skipped is the result of an event that needed no work.
type Skipped struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

type orderNotice struct {
	OrderID    string `json:"order_id"`
	LocationID string `json:"location_id"`
	State      string `json:"state"`
}

// Router turns an envelope into a call on the sync engine. It serves both
// live deliveries and replays of recorded events.
type Router struct {
	coordinator *syncqueue.Coordinator
	catalog     catalog.UseCase
	inventory   inventory.UseCase
	velocity    velocity.UseCase
	clients     remote.ClientFactory
	logger      logger.ZapLogger
}

func NewRouter(
	coordinator *syncqueue.Coordinator,
	catalogUC catalog.UseCase,
	inventoryUC inventory.UseCase,
	velocityUC velocity.UseCase,
	clients remote.ClientFactory,
	log logger.ZapLogger,
) *Router {
	return &Router{
		coordinator: coordinator,
		catalog:     catalogUC,
		inventory:   inventoryUC,
		velocity:    velocityUC,
		clients:     clients,
		logger:      log.With(zap.String("component", "EventRouter")),
	}
}

// Handles reports whether eventType triggers any work.
func (r *Router) Handles(eventType string) bool {
	switch {
	case eventType == TypeCatalogVersionUpdated,
		eventType == TypeInventoryCountUpdated,
		isOrderEvent(eventType),
		isInvoiceEvent(eventType):
		return true
	}
	return false
}

// Dispatch decodes payload as an Envelope and runs the matching sync.
func (r *Router) Dispatch(ctx context.Context, eventType string, payload []byte) (any, error) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retry.ErrPermanent, err)
	}
	if eventType == "" {
		eventType = env.Type
	}
	tenantID := env.MerchantID
	if tenantID == "" {
		return nil, fmt.Errorf("%w: event %s has no merchant id", retry.ErrPermanent, env.EventID)
	}

	var result any
	switch {
	case eventType == TypeCatalogVersionUpdated:
		result, err = syncqueue.ExecuteWithQueue(ctx, r.coordinator, syncqueue.KindCatalog, tenantID,
			func(ctx context.Context) (*catalogdto.SyncStats, error) {
				return r.catalog.DeltaSyncCatalog(ctx, tenantID)
			})
	case isInvoiceEvent(eventType):
		result, err = syncqueue.ExecuteWithQueue(ctx, r.coordinator, syncqueue.KindCommittedInventory, tenantID,
			func(ctx context.Context) (*inventorydto.CommittedResult, error) {
				return r.inventory.SyncCommittedInventory(ctx, tenantID)
			})
	case eventType == TypeInventoryCountUpdated:
		result, err = syncqueue.ExecuteWithQueue(ctx, r.coordinator, syncqueue.KindInventory, tenantID,
			func(ctx context.Context) (*inventorydto.CountsResult, error) {
				return r.inventory.SyncInventoryCounts(ctx, tenantID)
			})
	case isOrderEvent(eventType):
		result, err = r.handleOrder(ctx, tenantID, env)
	default:
		r.logger.Debug("ignoring event", zap.String("event_type", eventType), zap.String("tenant_id", tenantID))
		return &Skipped{Skipped: true, Reason: ReasonUnhandledType}, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (r *Router) handleOrder(ctx context.Context, tenantID string, env *Envelope) (any, error) {
	order, notice, err := decodeOrder(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retry.ErrPermanent, err)
	}
	if order == nil {
		if notice.State != "" && notice.State != remote.OrderStateCompleted {
			return &Skipped{Skipped: true, Reason: ReasonOrderNotCompleted}, nil
		}
		order, err = r.fetchOrder(ctx, tenantID, notice)
		if err != nil {
			return nil, err
		}
	}
	if order.State != remote.OrderStateCompleted {
		return &Skipped{Skipped: true, Reason: ReasonOrderNotCompleted}, nil
	}
	return r.velocity.UpdateSalesVelocityFromOrder(ctx, *order, tenantID)
}

// decodeOrder returns the embedded order when the payload carries one with
// line items, else the notice naming the order to fetch.
func decodeOrder(env *Envelope) (*remote.Order, orderNotice, error) {
	notice := orderNotice{OrderID: env.Data.ID}
	if len(env.Data.Object) == 0 {
		if notice.OrderID == "" {
			return nil, notice, fmt.Errorf("event %s names no order", env.EventID)
		}
		return nil, notice, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data.Object, &fields); err != nil {
		return nil, notice, fmt.Errorf("decode order object: %w", err)
	}
	if raw, ok := fields["order"]; ok {
		var order remote.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, notice, fmt.Errorf("decode order: %w", err)
		}
		if len(order.LineItems) > 0 {
			return &order, notice, nil
		}
		notice = orderNotice{OrderID: order.ID, LocationID: order.LocationID, State: order.State}
	}
	for name, raw := range fields {
		if name == "order" {
			continue
		}
		var n orderNotice
		if err := json.Unmarshal(raw, &n); err != nil || n.OrderID == "" {
			continue
		}
		notice = n
		break
	}
	if notice.OrderID == "" {
		notice.OrderID = env.Data.ID
	}
	if notice.OrderID == "" {
		return nil, notice, fmt.Errorf("event %s names no order", env.EventID)
	}
	return nil, notice, nil
}

func (r *Router) fetchOrder(ctx context.Context, tenantID string, notice orderNotice) (*remote.Order, error) {
	client, err := r.clients.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	orders, err := client.BatchRetrieveOrders(ctx, notice.LocationID, []string{notice.OrderID})
	if err != nil {
		return nil, fmt.Errorf("retrieve order %s: %w", notice.OrderID, err)
	}
	for i := range orders {
		if orders[i].ID == notice.OrderID {
			return &orders[i], nil
		}
	}
	return nil, fmt.Errorf("order %s not returned by remote", notice.OrderID)
}

// classify marks failures a replay cannot fix as permanent.
func classify(err error) error {
	if errors.Is(err, remote.ErrNoCredentials) ||
		errors.Is(err, velocity.ErrInvalidInput) ||
		errors.Is(err, catalog.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", retry.ErrPermanent, err)
	}
	return err
}
