package marketdata

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/httputil"
	"autotrader/internal/model"
)

type Handler struct {
	svc   *Service
	board *Board
}

func NewHandler(svc *Service, board *Board) *Handler {
	return &Handler{svc: svc, board: board}
}

type ingestQuoteRequest struct {
	Symbol    string     `json:"symbol"`
	Price     string     `json:"price"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// IngestQuote handles the internal quote feed endpoint. The market-data
// collection job that produces these is an external collaborator.
func (h *Handler) IngestQuote(w http.ResponseWriter, r *http.Request) {
	var req ingestQuoteRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	q := model.Quote{Symbol: symbol, Price: price}
	if req.Timestamp != nil {
		q.At = req.Timestamp.UTC()
	}
	if err := h.svc.Ingest(r.Context(), q); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

// Quotes lists the current quote board.
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	symbols := h.board.Symbols()
	out := make([]model.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := h.board.Last(s); ok {
			out = append(out, q)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
