package signal

import (
	"net/http"
	"strings"
	"time"

	"autotrader/internal/httputil"
	"autotrader/internal/model"
	"autotrader/internal/types"
)

type Handler struct {
	adapter *Adapter
}

func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// Ingest handles POST requests from the signal producer. Decimal fields
// accept JSON numbers or strings.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var sig model.Signal
	if err := httputil.ReadJSON(r, &sig); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))
	sig.Action = types.SignalAction(strings.ToUpper(string(sig.Action)))
	if sig.Symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}

	if err := h.adapter.HandleSignal(r.Context(), sig); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}
