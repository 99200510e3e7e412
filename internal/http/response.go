package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/auth"
	"despesas/internal/core"
	applog "despesas/internal/log"
	"despesas/internal/services"
)

const (
	msgInternalError = "Internal server error"
	msgInvalidUUID   = "Validation failed (uuid is expected)"
	msgInvalidJSON   = "Corpo da requisição deve ser um objeto JSON válido"
)

// timestampLayout renders instants in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// requestError is a client error with a single message that does not come
// from domain validation.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// errorBody is the error envelope every failed request returns. Message is
// a string, or a list of strings for validation failures.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    any    `json:"message"`
	Error      string `json:"error"`
}

type expenseJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Amount    json.Number   `json:"amount"`
	Category  core.Category `json:"category"`
	Date      string        `json:"date"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

type filtersJSON struct {
	Mes       string        `json:"mes,omitempty"`
	Ano       string        `json:"ano,omitempty"`
	Categoria core.Category `json:"categoria,omitempty"`
}

type listResponse struct {
	Despesas   []expenseJSON `json:"despesas"`
	Total      int           `json:"total"`
	ValorTotal json.Number   `json:"valorTotal"`
	Filtros    *filtersJSON  `json:"filtros,omitempty"`
}

type categoryStatsJSON struct {
	Quantidade int         `json:"quantidade"`
	Total      json.Number `json:"total"`
}

// categoryStats keeps the order of core.Categories in the JSON object.
type categoryStats []core.CategorySummary

func (c categoryStats) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(s.Category))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(categoryStatsJSON{Quantidade: s.Count, Total: amountJSON(s.Total)})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type periodJSON struct {
	Mes string `json:"mes,omitempty"`
	Ano string `json:"ano,omitempty"`
}

type statsResponse struct {
	TotalDespesas int           `json:"totalDespesas"`
	ValorTotal    json.Number   `json:"valorTotal"`
	PorCategoria  categoryStats `json:"porCategoria"`
	Periodo       periodJSON    `json:"periodo"`
}

type loginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	Message     string        `json:"message"`
	User        auth.Identity `json:"user"`
}

type deleteResponse struct {
	Mensagem string `json:"mensagem"`
}

// amountJSON renders a decimal as an exact JSON number.
func amountJSON(d decimal.Decimal) json.Number {
	return json.Number(core.RoundAmount(d).String())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:        e.ID,
		Title:     e.Title,
		Amount:    amountJSON(e.Amount),
		Category:  e.Category,
		Date:      e.Date.String(),
		CreatedAt: formatTimestamp(e.CreatedAt),
		UpdatedAt: formatTimestamp(e.UpdatedAt),
	}
}

func monthString(m *int) string {
	if m == nil {
		return ""
	}
	s := strconv.Itoa(*m)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}

func yearString(y *int) string {
	if y == nil {
		return ""
	}
	return strconv.Itoa(*y)
}

func toListResponse(res services.ListResult) listResponse {
	out := listResponse{
		Despesas:   make([]expenseJSON, 0, len(res.Expenses)),
		Total:      res.Total,
		ValorTotal: amountJSON(res.Sum),
	}
	for _, e := range res.Expenses {
		out.Despesas = append(out.Despesas, toExpenseJSON(e))
	}
	if f := res.Applied; f != nil {
		out.Filtros = &filtersJSON{
			Mes: monthString(f.Month),
			Ano: yearString(f.Year),
		}
		if f.Category != nil {
			out.Filtros.Categoria = *f.Category
		}
	}
	return out
}

func toStatsResponse(st services.Stats) statsResponse {
	return statsResponse{
		TotalDespesas: st.Count,
		ValorTotal:    amountJSON(st.Sum),
		PorCategoria:  categoryStats(st.PerCategory),
		Periodo: periodJSON{
			Mes: monthString(st.Period.Month),
			Ano: yearString(st.Period.Year),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"statusCode":500,"message":"Internal server error","error":"Internal Server Error"}`))
		return
	}
	writeRawJSON(w, status, body)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, message any) {
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

// authMessage maps authentication failures to the message shown to callers.
// Login failures share one message so a caller cannot tell an unknown email
// from a wrong password.
func authMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Email ou senha inválidos", true
	case errors.Is(err, auth.ErrMissingToken):
		return "Token de autorização não fornecido", true
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expirado. Faça login novamente.", true
	case errors.Is(err, auth.ErrInvalidToken):
		return "Token inválido", true
	case errors.Is(err, auth.ErrUserNotFound):
		return "Usuário não encontrado", true
	}
	return "", false
}

// writeError classifies err and writes the matching response. Unclassified
// errors are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *core.ValidationError
		notFoundErr   *core.NotFoundError
		reqErr        *requestError
	)
	switch {
	case errors.As(err, &validationErr):
		writeErrorMessage(w, http.StatusBadRequest, validationErr.Messages)
	case errors.As(err, &notFoundErr):
		writeErrorMessage(w, http.StatusNotFound, notFoundErr.Message())
	case errors.As(err, &reqErr):
		writeErrorMessage(w, reqErr.status, reqErr.message)
	default:
		if msg, ok := authMessage(err); ok {
			writeErrorMessage(w, http.StatusUnauthorized, msg)
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		writeErrorMessage(w, http.StatusInternalServerError, msgInternalError)
	}
}
