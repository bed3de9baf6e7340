// operations.go — обработчик GET /api/v1/admin/operations.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
)

type operationLogItem struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actorId,omitempty"`
	ActorMethod string         `json:"actorMethod"`
	Action      string         `json:"action"`
	TargetID    string         `json:"targetId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Outcome     string         `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type operationLogPage struct {
	Items  []operationLogItem `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListOperations возвращает страницу журнала операций.
// Доступно только по токену: общий секрет не даёт права чтения.
func (h *APIHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	audit := newAuditEntry(model.ActionListOperations, "")

	limitPtr, err := queryInt(q.Get("limit"))
	if err != nil {
		h.fail(w, r, audit, invalid("некорректный параметр limit"))
		return
	}
	offsetPtr, err := queryInt(q.Get("offset"))
	if err != nil {
		h.fail(w, r, audit, invalid("некорректный параметр offset"))
		return
	}
	limit, offset := paginationDefaults(limitPtr, offsetPtr)

	var filter model.OperationLogFilter
	if v := q.Get("action"); v != "" {
		filter.Action = &v
	}
	if v := q.Get("target_id"); v != "" {
		filter.TargetID = &v
	}

	actx, err := h.gate.Authorize(r, model.ActionListOperations, "")
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	audit.authorized(actx)

	entries, total, err := h.operations.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	h.record(r.Context(), audit, nil)

	page := operationLogPage{
		Items:  make([]operationLogItem, 0, len(entries)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, e := range entries {
		page.Items = append(page.Items, operationLogItem{
			ID:          e.ID,
			ActorID:     e.ActorID,
			ActorMethod: e.ActorMethod,
			Action:      e.Action,
			TargetID:    e.TargetID,
			Metadata:    e.Metadata,
			Outcome:     e.Outcome,
			Error:       e.Error,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
