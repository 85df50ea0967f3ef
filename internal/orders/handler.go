package orders

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"autotrader/internal/httputil"
	"autotrader/internal/model"
	"autotrader/internal/risk"
	"autotrader/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	OrderType  string  `json:"order_type"`
	Quantity   string  `json:"quantity"`
	LimitPrice *string `json:"limit_price,omitempty"`
}

// Place handles POST /v1/orders. Rejected orders come back 422 with the
// persisted REJECTED order in the body; validation failures are 400 and leave
// no trace.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := httputil.ReadJSON(r, &body); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}

	req := PlaceRequest{
		Symbol: strings.ToUpper(strings.TrimSpace(body.Symbol)),
		Side:   types.OrderSide(strings.ToUpper(body.Side)),
		Type:   types.OrderType(strings.ToUpper(body.OrderType)),
	}
	qty, err := decimal.NewFromString(body.Quantity)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quantity"})
		return
	}
	req.Quantity = qty
	if body.LimitPrice != nil {
		p, err := decimal.NewFromString(*body.LimitPrice)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit_price"})
			return
		}
		req.LimitPrice = &p
	}

	ord, err := h.svc.PlaceOrder(r.Context(), req)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusCreated, ord)
	case ord.Status == types.OrderStatusRejected:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, rejectedResponse(ord, err))
	case errors.Is(err, risk.ErrInvalidOrder):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

type rejectedOrderResponse struct {
	model.Order
	Error string `json:"error"`
}

func rejectedResponse(ord model.Order, err error) rejectedOrderResponse {
	return rejectedOrderResponse{Order: ord, Error: err.Error()}
}

// Get handles GET /v1/orders/{orderID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ord, err := h.svc.Order(r.Context(), chi.URLParam(r, "orderID"))
	if errors.Is(err, ErrNotFound) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
		return
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ord)
}

// List handles GET /v1/orders, returning open orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	open, err := h.svc.OpenOrders(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, open)
}

// Cancel handles POST /v1/orders/{orderID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ord, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "orderID"))
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, ord)
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
	case errors.Is(err, model.ErrNotCancellable), errors.Is(err, model.ErrInvalidTransition):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "order can no longer be cancelled"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

// Positions handles GET /v1/positions.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.Positions(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

// Portfolio handles GET /v1/portfolio.
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Portfolio(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// Account handles GET /v1/account.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.Account(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

// Trades handles GET /v1/trades with optional from, to and limit params.
func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := windowParams(r, 100)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	trades, err := h.svc.Trades(r.Context(), from, to, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trades)
}

// Snapshots handles GET /v1/snapshots.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := windowParams(r, 500)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	snaps, err := h.svc.Snapshots(r.Context(), from, to, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snaps)
}

func windowParams(r *http.Request, defaultLimit int) (from, to time.Time, limit int, err error) {
	q := r.URL.Query()
	limit = defaultLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return from, to, 0, errors.New("invalid limit")
		}
	}
	if v := q.Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, 0, errors.New("invalid from, want RFC3339")
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, 0, errors.New("invalid to, want RFC3339")
		}
	}
	return from, to, limit, nil
}
