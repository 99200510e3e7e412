package core

import (
	"fmt"
	"strings"
)

// User-facing validation messages.
const (
	MsgTitleNotString  = "Título deve ser uma string"
	MsgTitleRequired   = "Título é obrigatório"
	MsgTitleTooLong    = "Título deve ter no máximo 255 caracteres"
	MsgAmountPrecision = "Valor deve ser um número com no máximo 2 casas decimais"
	MsgAmountPositive  = "Valor deve ser positivo"
	MsgAmountMax       = "Valor deve ser no máximo 99999999.99"
	MsgDateFormat      = "Data deve estar no formato YYYY-MM-DD"
	MsgDateRequired    = "Data é obrigatória"
	MsgMonthRange      = "Mês deve estar entre 01 e 12"
	MsgYearFormat      = "Ano deve ter formato YYYY"
)

// MsgCategoryInvalid lists the accepted categories.
var MsgCategoryInvalid = "Categoria deve ser uma das opções: " + joinCategories(", ")

func joinCategories(sep string) string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, sep)
}

// ValidationError reports malformed or missing input. Messages are meant to
// be shown to the caller as-is.
type ValidationError struct {
	Messages []string
}

func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// NotFoundError is returned when no expense has the requested id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("expense %s not found", e.ID)
}

// Message is the caller-facing description of the error.
func (e *NotFoundError) Message() string {
	return fmt.Sprintf("Despesa com ID %s não encontrada", e.ID)
}
