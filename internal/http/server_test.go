package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despesas/internal/auth"
	"despesas/internal/core"
	applog "despesas/internal/log"
	"despesas/internal/query"
	"despesas/internal/services"
	"despesas/internal/storage"
	"despesas/internal/storage/memory"
)

const (
	testEmail    = "admin@expenses.com"
	testPassword = "admin123"
	missingID    = "00000000-0000-4000-8000-000000000000"
)

var testNow = time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return io.ErrUnexpectedEOF }

type testServer struct {
	t     *testing.T
	srv   *Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithStore(t, func(s *memory.Store) storage.ExpenseStore { return s })
}

// newTestServerWithStore lets a test wrap the expense store seen by the
// service. Users stay on the plain memory store.
func newTestServerWithStore(t *testing.T, wrap func(*memory.Store) storage.ExpenseStore) *testServer {
	t.Helper()
	store := memory.New()
	authn := auth.New(store, "test-secret", time.Hour)
	_, err := authn.EnsureDefaultUser(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	svc := services.NewExpenseService(wrap(store), services.WithClock(func() time.Time { return testNow }))
	srv := NewServer(Options{
		Addr:        ":0",
		Environment: "test",
		CORSOrigins: []string{"http://localhost:3000"},
		CacheTTL:    time.Minute,
		Logger:      applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
	}, authn, svc, store)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testServer{t: t, srv: srv, store: store}
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login() string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"`+testEmail+`","password":"`+testPassword+`"}`, "")
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var res loginResponse
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.AccessToken
}

func (ts *testServer) create(token, body string) map[string]any {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/despesas", body, token)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeObject(ts.t, rec)
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func messages(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Message []string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World!", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, "test", body.Environment)
	assert.Equal(t, apiVersion, body.Version)
	_, err := time.Parse(timestampLayout, body.Timestamp)
	assert.NoError(t, err)
}

func TestReady(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.srv.pinger = failingPinger{}
	rec = ts.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/nope", "Cannot GET /nope"},
		{http.MethodPut, "/despesas", "Cannot PUT /despesas"},
		{http.MethodPost, "/health", "Cannot POST /health"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, "", "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, tt.want, message(t, rec))
		})
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"admin@expenses.com","password":"admin123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, testEmail, res.User.Email)
	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, loginMessage, res.Message)
}

func TestLoginFailures(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"email":"admin@expenses.com","password":"wrong-password"}`,
		`{"email":"nobody@expenses.com","password":"admin123"}`,
	} {
		rec := ts.do(http.MethodPost, "/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Email ou senha inválidos", message(t, rec))
	}

	rec := ts.do(http.MethodPost, "/auth/login", `{}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t,
		[]string{msgEmailInvalid, msgEmailRequired, msgPasswordNotStr, msgPasswordTooShort},
		messages(t, rec))

	rec = ts.do(http.MethodPost, "/auth/login", `{"email":"admin@expenses.com","password":"admin123","role":"x"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"property role should not exist"}, messages(t, rec))

	rec = ts.do(http.MethodPost, "/auth/login", `{"email":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidJSON, message(t, rec))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	body := `{"title":"Almoço","amount":25.5,"category":"ALIMENTACAO","date":"2025-08-10"}`

	rec := ts.do(http.MethodPost, "/despesas", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token de autorização não fornecido", message(t, rec))

	rec = ts.do(http.MethodPost, "/despesas", body, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token inválido", message(t, rec))

	rec = ts.do(http.MethodDelete, "/despesas/not-a-uuid", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPatch, "/despesas/"+missingID, `{"title":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

func TestCreateAndGetExpense(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	created := ts.create(token, `{"title":"Supermercado","amount":89.9,"category":"ALIMENTACAO","date":"2025-08-10"}`)
	id, _ := created["id"].(string)
	require.Len(t, id, 36)
	assert.Equal(t, "Supermercado", created["title"])
	assert.Equal(t, 89.9, created["amount"])
	assert.Equal(t, "ALIMENTACAO", created["category"])
	assert.Equal(t, "2025-08-10", created["date"])
	assert.Regexp(t, timestampPattern, created["createdAt"])
	assert.Regexp(t, timestampPattern, created["updatedAt"])

	rec := ts.do(http.MethodGet, "/despesas/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeObject(t, rec))

	rec = ts.do(http.MethodGet, "/despesas/"+missingID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Despesa com ID "+missingID+" não encontrada", message(t, rec))

	rec = ts.do(http.MethodGet, "/despesas/123", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidUUID, message(t, rec))
}

func TestCreateExpenseValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	rec := ts.do(http.MethodPost, "/despesas", `{}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msgs := messages(t, rec)
	for _, want := range []string{
		core.MsgTitleRequired, core.MsgAmountPositive, core.MsgCategoryInvalid, core.MsgDateFormat,
	} {
		assert.Contains(t, msgs, want)
	}

	rec = ts.do(http.MethodPost, "/despesas",
		`{"title":"Táxi","amount":-3.999,"category":"VIAGEM","date":"2025-08-10","extra":1}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msgs = messages(t, rec)
	assert.Equal(t, "property extra should not exist", msgs[0])
	assert.Contains(t, msgs, core.MsgCategoryInvalid)

	rec = ts.do(http.MethodPost, "/despesas",
		`{"title":"Táxi","amount":-3.999,"category":"TRANSPORTE","date":"2025-08-10"}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{core.MsgAmountPrecision, core.MsgAmountPositive}, messages(t, rec))

	rec = ts.do(http.MethodPost, "/despesas",
		`{"title":"Táxi","amount":10,"category":"TRANSPORTE","date":"10/08/2025"}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{core.MsgDateFormat}, messages(t, rec))
}

func TestAmountCeiling(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	for _, amount := range []string{"100000000", "184467440737095516.17"} {
		rec := ts.do(http.MethodPost, "/despesas",
			`{"title":"Carro","amount":`+amount+`,"category":"TRANSPORTE","date":"2025-08-10"}`, token)
		require.Equal(t, http.StatusBadRequest, rec.Code, amount)
		assert.Equal(t, []string{core.MsgAmountMax}, messages(t, rec))
	}

	created := ts.create(token, `{"title":"Carro","amount":99999999.99,"category":"TRANSPORTE","date":"2025-08-10"}`)
	id, _ := created["id"].(string)

	rec := ts.do(http.MethodPatch, "/despesas/"+id, `{"amount":"184467440737095516.17"}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{core.MsgAmountMax}, messages(t, rec))

	rec = ts.do(http.MethodGet, "/despesas/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 99999999.99, decodeObject(t, rec)["amount"])
}

func TestCreateAcceptsCommaAmount(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	created := ts.create(token, `{"title":"Feira","amount":"39,90","category":"ALIMENTACAO","date":"2025-08-10"}`)
	assert.Equal(t, 39.9, created["amount"])
}

func TestListExpenses(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()
	ts.create(token, `{"title":"Mercado","amount":100.10,"category":"ALIMENTACAO","date":"2025-08-01"}`)
	ts.create(token, `{"title":"Ônibus","amount":4.4,"category":"TRANSPORTE","date":"2025-08-20"}`)
	ts.create(token, `{"title":"Cinema","amount":30,"category":"LAZER","date":"2025-07-05"}`)

	rec := ts.do(http.MethodGet, "/despesas", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeObject(t, rec)
	assert.Equal(t, float64(3), all["total"])
	assert.Equal(t, 134.5, all["valorTotal"])
	assert.NotContains(t, all, "filtros")
	list := all["despesas"].([]any)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-08-20", list[0].(map[string]any)["date"])

	rec = ts.do(http.MethodGet, "/despesas?mes=08&ano=2025", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	august := decodeObject(t, rec)
	assert.Equal(t, float64(2), august["total"])
	assert.Equal(t, map[string]any{"mes": "08", "ano": "2025"}, august["filtros"])

	rec = ts.do(http.MethodGet, "/despesas?categoria=LAZER", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lazer := decodeObject(t, rec)
	assert.Equal(t, float64(1), lazer["total"])
	assert.Equal(t, map[string]any{"categoria": "LAZER"}, lazer["filtros"])

	rec = ts.do(http.MethodGet, "/despesas?mes=07", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeObject(t, rec)["total"])
}

func TestListExpensesRejectsBadFilters(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"mes=13", []string{core.MsgMonthRange}},
		{"mes=8", []string{core.MsgMonthRange}},
		{"ano=25", []string{core.MsgYearFormat}},
		{"categoria=VIAGEM", []string{core.MsgCategoryInvalid}},
		{"sort=asc", []string{"property sort should not exist"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/despesas?"+tt.query, "", "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, messages(t, rec))
		})
	}

	rec := ts.do(http.MethodGet, "/despesas?pagina=2&limite=10", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpenseStats(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()
	ts.create(token, `{"title":"Uber","amount":20.25,"category":"TRANSPORTE","date":"2025-08-02"}`)
	ts.create(token, `{"title":"Padaria","amount":10.5,"category":"ALIMENTACAO","date":"2025-08-03"}`)
	ts.create(token, `{"title":"Feira","amount":5.25,"category":"ALIMENTACAO","date":"2025-08-04"}`)

	rec := ts.do(http.MethodGet, "/despesas/estatisticas?mes=08&ano=2025", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	raw := rec.Body.String()
	assert.Less(t, strings.Index(raw, `"ALIMENTACAO"`), strings.Index(raw, `"TRANSPORTE"`))

	body := decodeObject(t, rec)
	assert.Equal(t, float64(3), body["totalDespesas"])
	assert.Equal(t, float64(36), body["valorTotal"])
	assert.Equal(t, map[string]any{
		"ALIMENTACAO": map[string]any{"quantidade": float64(2), "total": 15.75},
		"TRANSPORTE":  map[string]any{"quantidade": float64(1), "total": 20.25},
	}, body["porCategoria"])
	assert.Equal(t, map[string]any{"mes": "08", "ano": "2025"}, body["periodo"])

	rec = ts.do(http.MethodGet, "/despesas/estatisticas", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{}, decodeObject(t, rec)["periodo"])
}

func TestUpdateExpense(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()
	created := ts.create(token, `{"title":"Farmácia","amount":42,"category":"SAUDE","date":"2025-08-05"}`)
	id := created["id"].(string)

	rec := ts.do(http.MethodPatch, "/despesas/"+id, `{"amount":"39.90","title":"Remédios"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeObject(t, rec)
	assert.Equal(t, 39.9, updated["amount"])
	assert.Equal(t, "Remédios", updated["title"])
	assert.Equal(t, "SAUDE", updated["category"])
	assert.Equal(t, created["createdAt"], updated["createdAt"])

	rec = ts.do(http.MethodPatch, "/despesas/"+missingID, `{"title":""}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPatch, "/despesas/"+id, `{"title":""}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{core.MsgTitleRequired}, messages(t, rec))

	rec = ts.do(http.MethodPatch, "/despesas/"+id, `{"category":7}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{core.MsgCategoryInvalid}, messages(t, rec))
}

func TestDeleteExpense(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()
	id := ts.create(token, `{"title":"Show","amount":150,"category":"LAZER","date":"2025-08-09"}`)["id"].(string)

	rec := ts.do(http.MethodDelete, "/despesas/"+id, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Despesa "+id+" removida com sucesso", decodeObject(t, rec)["mensagem"])

	rec = ts.do(http.MethodGet, "/despesas/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/despesas/"+id, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/despesas/xyz", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationsInvalidateCachedLists(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login()

	rec := ts.do(http.MethodGet, "/despesas", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeObject(t, rec)["total"])

	id := ts.create(token, `{"title":"Gasolina","amount":200,"category":"TRANSPORTE","date":"2025-08-11"}`)["id"].(string)
	rec = ts.do(http.MethodGet, "/despesas", "", "")
	assert.Equal(t, float64(1), decodeObject(t, rec)["total"])

	ts.do(http.MethodDelete, "/despesas/"+id, "", token)
	rec = ts.do(http.MethodGet, "/despesas", "", "")
	assert.Equal(t, float64(0), decodeObject(t, rec)["total"])
}

// pausingStore blocks one ListExpenses call after it has read, so a mutation
// can land between the read and the response being cached.
type pausingStore struct {
	*memory.Store
	armed   atomic.Bool
	reading chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListExpenses(ctx context.Context, pred query.Predicate) ([]core.Expense, error) {
	res, err := p.Store.ListExpenses(ctx, pred)
	if p.armed.CompareAndSwap(true, false) {
		close(p.reading)
		<-p.release
	}
	return res, err
}

func TestSlowReadDoesNotCacheOverMutation(t *testing.T) {
	var ps *pausingStore
	ts := newTestServerWithStore(t, func(s *memory.Store) storage.ExpenseStore {
		ps = &pausingStore{Store: s, reading: make(chan struct{}), release: make(chan struct{})}
		return ps
	})
	token := ts.login()

	ps.armed.Store(true)
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- ts.do(http.MethodGet, "/despesas", "", "") }()
	<-ps.reading

	ts.create(token, `{"title":"Gasolina","amount":200,"category":"TRANSPORTE","date":"2025-08-11"}`)
	close(ps.release)

	stale := <-done
	require.Equal(t, http.StatusOK, stale.Code)
	assert.Equal(t, float64(0), decodeObject(t, stale)["total"])

	rec := ts.do(http.MethodGet, "/despesas", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeObject(t, rec)["total"])
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodOptions, "/despesas", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
