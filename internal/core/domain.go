package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Alimentacao Category = "ALIMENTACAO"
	Transporte  Category = "TRANSPORTE"
	Saude       Category = "SAUDE"
	Lazer       Category = "LAZER"
	Outros      Category = "OUTROS"
)

// MaxTitleLength is the maximum number of characters in an expense title.
const MaxTitleLength = 255

// Categories lists every category in presentation order. Aggregations
// iterate this slice so their output order never depends on map iteration.
var Categories = []Category{Alimentacao, Transporte, Saude, Lazer, Outros}

type (
	Category string

	Date struct {
		time.Time
	}

	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Expense struct {
		ID        string
		Title     string
		Amount    decimal.Decimal
		Category  Category
		Date      Date
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// NewExpense carries the fields of an expense about to be created.
	// ID is optional; stores generate one when it is empty.
	NewExpense struct {
		ID       string
		Title    string
		Amount   decimal.Decimal
		Category Category
		Date     Date
	}

	// ExpensePatch is a partial update. A nil field is left unchanged.
	ExpensePatch struct {
		Title    *string
		Amount   *decimal.Decimal
		Category *Category
		Date     *Date
	}

	// Filter narrows the expenses considered by list and stats operations.
	Filter struct {
		Month    *int
		Year     *int
		Category *Category
	}
)

var ErrInvalidDate = errors.New("invalid date")

const dateLayout = "2006-01-02"

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp, keeping only
// the calendar date (in UTC for timestamps).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// LastDayOfMonth returns the last calendar day of the given month.
func LastDayOfMonth(year, month int) Date {
	return Date{Time: time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)}
}

func validateTitle(title string) []string {
	if strings.TrimSpace(title) == "" {
		return []string{MsgTitleRequired}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return []string{MsgTitleTooLong}
	}
	return nil
}

func validateCategory(c Category) []string {
	if !c.Valid() {
		return []string{MsgCategoryInvalid}
	}
	return nil
}

// Validate checks every invariant of a new expense and reports all
// violations at once.
func (n NewExpense) Validate() error {
	var msgs []string
	msgs = append(msgs, validateTitle(n.Title)...)
	msgs = append(msgs, ValidateAmount(n.Amount)...)
	msgs = append(msgs, validateCategory(n.Category)...)
	if n.Date.IsZero() {
		msgs = append(msgs, MsgDateRequired)
	}
	if len(msgs) > 0 {
		return NewValidationError(msgs...)
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p ExpensePatch) Validate() error {
	var msgs []string
	if p.Title != nil {
		msgs = append(msgs, validateTitle(*p.Title)...)
	}
	if p.Amount != nil {
		msgs = append(msgs, ValidateAmount(*p.Amount)...)
	}
	if p.Category != nil {
		msgs = append(msgs, validateCategory(*p.Category)...)
	}
	if p.Date != nil && p.Date.IsZero() {
		msgs = append(msgs, MsgDateFormat)
	}
	if len(msgs) > 0 {
		return NewValidationError(msgs...)
	}
	return nil
}

// Apply returns e with the patch fields applied.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// IsEmpty reports whether no filter field is set.
func (f Filter) IsEmpty() bool {
	return f.Month == nil && f.Year == nil && f.Category == nil
}
