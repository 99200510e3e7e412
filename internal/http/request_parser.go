package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

const maxBodyBytes = 1 << 20

const (
	msgEmailInvalid     = "Email deve ter um formato válido"
	msgEmailRequired    = "Email é obrigatório"
	msgPasswordNotStr   = "Senha deve ser uma string"
	msgPasswordTooShort = "Senha deve ter pelo menos 6 caracteres"
	minPasswordLength   = 6
)

var (
	monthPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	yearPattern  = regexp.MustCompile(`^[0-9]{4}$`)
)

var (
	filterParams  = []string{"mes", "ano", "categoria", "pagina", "limite"}
	expenseFields = []string{"title", "amount", "category", "date"}
	loginFields   = []string{"email", "password"}
)

func unknownPropertyMessage(name string) string {
	return "property " + name + " should not exist"
}

// unknownKeys returns the keys outside allowed, sorted so messages come out
// in a stable order.
func unknownKeys[V any](values map[string]V, allowed []string) []string {
	var out []string
	for k := range values {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			out = append(out, unknownPropertyMessage(k))
		}
	}
	sort.Strings(out)
	return out
}

// parseFilter validates the list and stats query string. pagina and limite
// are accepted and ignored.
func parseFilter(q url.Values) (core.Filter, error) {
	msgs := unknownKeys(map[string][]string(q), filterParams)
	var f core.Filter

	if vals, ok := q["mes"]; ok {
		if len(vals) != 1 || !monthPattern.MatchString(vals[0]) {
			msgs = append(msgs, core.MsgMonthRange)
		} else {
			m, _ := strconv.Atoi(vals[0])
			f.Month = &m
		}
	}
	if vals, ok := q["ano"]; ok {
		if len(vals) != 1 || !yearPattern.MatchString(vals[0]) {
			msgs = append(msgs, core.MsgYearFormat)
		} else {
			y, _ := strconv.Atoi(vals[0])
			f.Year = &y
		}
	}
	if vals, ok := q["categoria"]; ok {
		c, valid := core.Category(""), false
		if len(vals) == 1 {
			c, valid = core.ParseCategory(vals[0])
		}
		if !valid {
			msgs = append(msgs, core.MsgCategoryInvalid)
		} else {
			f.Category = &c
		}
	}

	if len(msgs) > 0 {
		return core.Filter{}, core.NewValidationError(msgs...)
	}
	return f, nil
}

// filterKey normalises a filter into a cache key.
func filterKey(kind string, f core.Filter) string {
	var b strings.Builder
	b.WriteString(kind)
	if f.Month != nil {
		b.WriteString("|mes=" + strconv.Itoa(*f.Month))
	}
	if f.Year != nil {
		b.WriteString("|ano=" + strconv.Itoa(*f.Year))
	}
	if f.Category != nil {
		b.WriteString("|categoria=" + string(*f.Category))
	}
	return b.String()
}

// parseID requires a canonical hyphenated UUID.
func parseID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if len(id) != 36 {
		return "", badRequest(msgInvalidUUID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", badRequest(msgInvalidUUID)
	}
	return id, nil
}

// readObject decodes the body as a JSON object, keeping each member raw so
// that type errors can be reported per field. JSON null members are dropped.
func readObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: "Payload Too Large"}
		}
		return nil, badRequest(msgInvalidJSON)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, badRequest(msgInvalidJSON)
	}
	for k, v := range obj {
		if string(v) == "null" {
			delete(obj, k)
		}
	}
	return obj, nil
}

func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// rawAmount reads a JSON number, or a string holding one, without passing
// through float64. Strings may use a comma separator ("39,90").
func rawAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	text := string(raw)
	if s, ok := rawString(raw); ok {
		text = s
	}
	d, err := core.ParseAmount(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

type expenseFieldsResult struct {
	title    *string
	amount   *decimal.Decimal
	category *core.Category
	date     *core.Date
	msgs     []string
}

// parseExpenseFields type-checks the members present in obj. Domain rules
// (length, sign, precision) are left to core.
func parseExpenseFields(obj map[string]json.RawMessage) expenseFieldsResult {
	res := expenseFieldsResult{msgs: unknownKeys(obj, expenseFields)}

	if raw, ok := obj["title"]; ok {
		if s, ok := rawString(raw); ok {
			res.title = &s
		} else {
			res.msgs = append(res.msgs, core.MsgTitleNotString)
		}
	}
	if raw, ok := obj["amount"]; ok {
		if d, ok := rawAmount(raw); ok {
			res.amount = &d
		} else {
			res.msgs = append(res.msgs, core.MsgAmountPrecision, core.MsgAmountPositive)
		}
	}
	if raw, ok := obj["category"]; ok {
		s, _ := rawString(raw)
		if c, valid := core.ParseCategory(s); valid {
			res.category = &c
		} else {
			res.msgs = append(res.msgs, core.MsgCategoryInvalid)
		}
	}
	if raw, ok := obj["date"]; ok {
		s, isString := rawString(raw)
		d, err := core.ParseDate(s)
		if !isString || err != nil {
			res.msgs = append(res.msgs, core.MsgDateFormat)
		} else {
			res.date = &d
		}
	}
	return res
}

// parseNewExpense builds a NewExpense from a create request body. Missing
// members are reported together with invalid ones.
func parseNewExpense(w http.ResponseWriter, r *http.Request) (core.NewExpense, error) {
	obj, err := readObject(w, r)
	if err != nil {
		return core.NewExpense{}, err
	}
	res := parseExpenseFields(obj)
	msgs := res.msgs

	var n core.NewExpense
	if res.title == nil {
		if _, present := obj["title"]; !present {
			msgs = append(msgs, core.MsgTitleNotString, core.MsgTitleRequired)
		}
	} else {
		n.Title = *res.title
	}
	if res.amount == nil {
		if _, present := obj["amount"]; !present {
			msgs = append(msgs, core.MsgAmountPrecision, core.MsgAmountPositive)
		}
	} else {
		n.Amount = *res.amount
	}
	if res.category == nil {
		if _, present := obj["category"]; !present {
			msgs = append(msgs, core.MsgCategoryInvalid)
		}
	} else {
		n.Category = *res.category
	}
	if res.date == nil {
		if _, present := obj["date"]; !present {
			msgs = append(msgs, core.MsgDateFormat)
		}
	} else {
		n.Date = *res.date
	}

	if len(msgs) > 0 {
		return core.NewExpense{}, core.NewValidationError(msgs...)
	}
	return n, nil
}

// parseExpensePatch builds a patch from the members present in the body.
func parseExpensePatch(w http.ResponseWriter, r *http.Request) (core.ExpensePatch, error) {
	obj, err := readObject(w, r)
	if err != nil {
		return core.ExpensePatch{}, err
	}
	res := parseExpenseFields(obj)
	if len(res.msgs) > 0 {
		return core.ExpensePatch{}, core.NewValidationError(res.msgs...)
	}
	return core.ExpensePatch{
		Title:    res.title,
		Amount:   res.amount,
		Category: res.category,
		Date:     res.date,
	}, nil
}

type loginRequest struct {
	Email    string
	Password string
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	_, domain, ok := strings.Cut(s, "@")
	return ok && strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

func parseLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	obj, err := readObject(w, r)
	if err != nil {
		return loginRequest{}, err
	}
	msgs := unknownKeys(obj, loginFields)

	var req loginRequest
	if raw, ok := obj["email"]; !ok {
		msgs = append(msgs, msgEmailInvalid, msgEmailRequired)
	} else if s, isString := rawString(raw); !isString || !validEmail(s) {
		msgs = append(msgs, msgEmailInvalid)
	} else {
		req.Email = s
	}

	if raw, ok := obj["password"]; !ok {
		msgs = append(msgs, msgPasswordNotStr, msgPasswordTooShort)
	} else if s, isString := rawString(raw); !isString {
		msgs = append(msgs, msgPasswordNotStr, msgPasswordTooShort)
	} else if len([]rune(s)) < minPasswordLength {
		msgs = append(msgs, msgPasswordTooShort)
	} else {
		req.Password = s
	}

	if len(msgs) > 0 {
		return loginRequest{}, core.NewValidationError(msgs...)
	}
	return req, nil
}
