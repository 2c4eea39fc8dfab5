package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reservo/internal/availability"
	"reservo/internal/cart"
	"reservo/internal/domain"
	"reservo/internal/models"

	"github.com/gorilla/mux"
)

const (
	routeHealth          = "health"
	routeListItems       = "list_items"
	routeAvailability    = "availability"
	routeUpdateQuantity  = "update_quantity"
	routeGetCart         = "get_cart"
	routeAddEntry        = "add_entry"
	routeUpdateEntry     = "update_entry"
	routeRemoveEntry     = "remove_entry"
	routeClearWorkspace  = "clear_workspace"
	routePruneCart       = "prune_cart"
	routeCheckout        = "checkout"
	routeCancel          = "cancel_reservation"
	routeNoShow          = "mark_no_show"
	routeReturn          = "record_return"
	routeNotifications   = "list_notifications"
	defaultNotifications = 50
)

var routePermissions = map[string]string{
	routeListItems:      permReadItems,
	routeAvailability:   permReadAvailability,
	routeUpdateQuantity: permWriteItems,
	routeGetCart:        permWriteCart,
	routeAddEntry:       permWriteCart,
	routeUpdateEntry:    permWriteCart,
	routeRemoveEntry:    permWriteCart,
	routeClearWorkspace: permWriteCart,
	routePruneCart:      permWriteCart,
	routeCheckout:       permWriteCart,
	routeCancel:         permWriteReservations,
	routeNoShow:         permWriteReservations,
	routeReturn:         permWriteReservations,
	routeNotifications:  permReadNotifications,
}

func (s *HTTPServer) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet).Name(routeHealth)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/workspaces/{workspace_id:[0-9]+}/items", s.handleListItems).Methods(http.MethodGet).Name(routeListItems)
	v1.HandleFunc("/items/{id:[0-9]+}/availability", s.handleAvailability).Methods(http.MethodGet).Name(routeAvailability)
	v1.HandleFunc("/items/{id:[0-9]+}/quantity", s.handleUpdateQuantity).Methods(http.MethodPut).Name(routeUpdateQuantity)

	v1.HandleFunc("/cart", s.handleGetCart).Methods(http.MethodGet).Name(routeGetCart)
	v1.HandleFunc("/cart/entries", s.handleAddEntry).Methods(http.MethodPost).Name(routeAddEntry)
	v1.HandleFunc("/cart/entries/{index:[0-9]+}", s.handleUpdateEntry).Methods(http.MethodPatch).Name(routeUpdateEntry)
	v1.HandleFunc("/cart/entries/{index:[0-9]+}", s.handleRemoveEntry).Methods(http.MethodDelete).Name(routeRemoveEntry)
	v1.HandleFunc("/cart/workspaces/{workspace_id:[0-9]+}", s.handleClearWorkspace).Methods(http.MethodDelete).Name(routeClearWorkspace)
	v1.HandleFunc("/cart/prune", s.handlePrune).Methods(http.MethodPost).Name(routePruneCart)
	v1.HandleFunc("/workspaces/{workspace_id:[0-9]+}/checkout", s.handleCheckout).Methods(http.MethodPost).Name(routeCheckout)

	v1.HandleFunc("/reservations/{id:[0-9]+}", s.handleCancel).Methods(http.MethodDelete).Name(routeCancel)
	v1.HandleFunc("/reservations/{id:[0-9]+}/no-show", s.handleNoShow).Methods(http.MethodPost).Name(routeNoShow)
	v1.HandleFunc("/reservations/{id:[0-9]+}/returns", s.handleReturn).Methods(http.MethodPost).Name(routeReturn)
	v1.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet).Name(routeNotifications)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathInt(r, "workspace_id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	items, err := s.svc.Items.ListItems(r.Context(), wsID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	dateStr := q.Get("date")
	if dateStr == "" {
		s.writeDomainError(w, r, domain.NewValidationError("date", "is required"))
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, s.loc)
	if err != nil {
		s.writeDomainError(w, r, domain.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}

	requested := int64(1)
	if raw := q.Get("quantity"); raw != "" {
		requested, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeDomainError(w, r, domain.NewValidationError("quantity", "must be an integer"))
			return
		}
	}

	item, err := s.svc.Items.GetItem(r.Context(), itemID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	bounds := availability.HorizonBounds(s.clock.Now(), s.horizonDays, s.loc)
	slots, err := s.svc.Availability.Day(r.Context(), item, requested, day, s.loc, bounds)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item_id": itemID,
		"date":    dateStr,
		"slots":   slots,
	})
}

type quantityRequest struct {
	Quantity int64 `json:"quantity"`
}

func (s *HTTPServer) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.svc.Items.UpdateQuantity(r.Context(), itemID, req.Quantity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleGetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	entries, err := store.Entries(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	segments := cart.MergeEntries(entries)

	var total int64
	for _, e := range entries {
		total += e.Quantity
	}
	count := 0
	for _, segs := range segments {
		count += len(segs)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":            entries,
		"segments":           segments,
		"total_count":        total,
		"reservations_count": count,
	})
}

type addEntryRequest struct {
	ItemID    int64  `json:"item_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Quantity  int64  `json:"quantity"`
}

// handleAddEntry places a soft hold first so the units stay reserved while
// they sit in the cart.
func (s *HTTPServer) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	var req addEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	item, err := s.svc.Items.GetItem(ctx, req.ItemID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	entry, err := models.ParseCartEntry(item.ID, item.WorkspaceID, req.StartTime, req.EndTime, cart.ClampQuantity(req.Quantity), s.loc)
	if err != nil {
		s.writeDomainError(w, r, domain.NewValidationError("entry", err.Error()))
		return
	}

	hold, err := s.svc.Holds.Acquire(ctx, store.UserID(), item.ID, entry.StartTime, entry.EndTime, entry.Quantity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := store.Add(ctx, entry); err != nil {
		if derr := s.svc.Holds.Discard(context.WithoutCancel(ctx), hold.ID); derr != nil {
			s.log.Error().Err(derr).Int64("hold_id", hold.ID).Msg("Failed to discard hold after cart update failed")
		}
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry, "hold": hold})
}

func (s *HTTPServer) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := store.Update(r.Context(), int(index), req.Quantity); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := store.Remove(r.Context(), int(index)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleClearWorkspace(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	wsID, err := pathInt(r, "workspace_id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	removed, err := store.ClearWorkspace(r.Context(), wsID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *HTTPServer) handlePrune(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	evicted, err := s.svc.Pruner.Prune(r.Context(), store)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	wsID, err := pathInt(r, "workspace_id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	result, err := s.svc.Checkout.Checkout(r.Context(), store, wsID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Reservations.Cancel(r.Context(), userID, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Reservations.MarkNoShow(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type returnRequest struct {
	Count int64 `json:"count"`
}

func (s *HTTPServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Reservations.RecordReturn(r.Context(), id, req.Count); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	limit := defaultNotifications
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeDomainError(w, r, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	list, err := s.svc.Notifications.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *HTTPServer) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+userIDHeader+" header")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) cartFor(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	userID, ok := s.userID(w, r)
	if !ok {
		return nil, false
	}
	return cart.NewStore(s.svc.Carts, userID), true
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return v, nil
}
