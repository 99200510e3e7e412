package http

import (
	"encoding/json"
	"net/http"

	"despesas/internal/core"
	applog "despesas/internal/log"
)

const (
	cacheKindList  = "list"
	cacheKindStats = "stats"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := filterKey(cacheKindList, f)
	body, gen, ok := s.cachedResponse(key)
	if ok {
		writeRawJSON(w, http.StatusOK, body)
		return
	}

	res, err := s.expenses.FindAll(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.writeCacheable(w, r, key, gen, toListResponse(res))
}

func (s *Server) handleExpenseStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := filterKey(cacheKindStats, f)
	body, gen, ok := s.cachedResponse(key)
	if ok {
		writeRawJSON(w, http.StatusOK, body)
		return
	}

	st, err := s.expenses.Stats(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.writeCacheable(w, r, key, gen, toStatsResponse(st))
}

func (s *Server) writeCacheable(w http.ResponseWriter, r *http.Request, key string, gen uint64, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.storeResponse(key, gen, body)
	writeRawJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.FindOne(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(e))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := parseNewExpense(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateResponses()
	s.logMutation(r, applog.OpCreate, e)
	writeJSON(w, http.StatusCreated, toExpenseJSON(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patch, err := parseExpensePatch(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateResponses()
	s.logMutation(r, applog.OpUpdate, e)
	writeJSON(w, http.StatusOK, toExpenseJSON(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.expenses.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateResponses()
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExpense).DebugContext(r.Context(),
		"Expense removed", applog.FieldOperation, applog.OpDelete, applog.FieldExpenseID, id)
	writeJSON(w, http.StatusOK, deleteResponse{Mensagem: "Despesa " + id + " removida com sucesso"})
}

func (s *Server) logMutation(r *http.Request, op string, e core.Expense) {
	fields := applog.NewFields().
		WithOperation(op).
		WithExpense(e.ID, string(e.Category), e.Amount)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExpense).DebugContext(r.Context(),
		"Expense "+op+"d", fields.ToSlice()...)
}
