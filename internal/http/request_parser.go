// Package http provides the JSON API over the report and purchase services.
//
// This file decodes and validates request input: the period query parameter,
// purchase bodies and conversation messages.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fatura/internal/core"
)

const maxBodyBytes = 1 << 16

// RequestError is returned for input the client must fix. Fields maps a JSON
// field name to the rule it broke.
type RequestError struct {
	Message string
	Fields  map[string]string
}

func (e *RequestError) Error() string {
	return e.Message
}

// amountField accepts both a JSON number and locale-formatted text ("1.234,56").
type amountField struct {
	decimal.Decimal
	set bool
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	d, err := core.ParseAmountValue(v)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidAmount, b)
	}
	a.Decimal, a.set = d, true
	return nil
}

// PurchaseRequest is the body of POST /api/purchases. Date is dd/mm/yyyy and
// defaults to today; Owner defaults to "Geral"; Installments defaults to 1.
type PurchaseRequest struct {
	Amount       amountField `json:"amount" validate:"required"`
	Installments int         `json:"installments" validate:"omitempty,min=1,max=72"`
	Date         string      `json:"date" validate:"omitempty,max=10"`
	Account      string      `json:"account" validate:"required,max=64"`
	Owner        string      `json:"owner" validate:"omitempty,max=64"`
	Category     string      `json:"category" validate:"required,max=64"`
	Description  string      `json:"description" validate:"max=200"`
}

// MessageRequest is one chat message.
type MessageRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	// amountField is a struct; "required" must look at whether it was sent.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if a, ok := field.Interface().(amountField); ok && a.set {
			return a.String()
		}
		return ""
	}, amountField{})
	return v
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &RequestError{Message: "request body is empty"}
		}
		return &RequestError{Message: "invalid JSON body: " + err.Error()}
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &RequestError{Message: "validation failed", Fields: fields}
		}
		return &RequestError{Message: err.Error()}
	}
	return nil
}

// ToPurchase applies defaults and converts the request.
func (req PurchaseRequest) ToPurchase(now time.Time) (core.Purchase, error) {
	date := core.DateOf(now)
	if s := strings.TrimSpace(req.Date); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return core.Purchase{}, err
		}
		date = d
	}
	installments := req.Installments
	if installments == 0 {
		installments = 1
	}
	owner := sanitizeInput(req.Owner)
	if owner == "" {
		owner = core.DefaultOwner
	}
	return core.Purchase{
		Amount:       req.Amount.Decimal,
		Installments: installments,
		PurchaseDate: date,
		Account:      sanitizeInput(req.Account),
		Owner:        owner,
		Category:     sanitizeInput(req.Category),
		Description:  sanitizeInput(req.Description),
	}, nil
}

// ParsePeriodParam reads ?period=MM-YYYY. An absent parameter yields the zero
// period, which the report service resolves to its default.
func ParsePeriodParam(query url.Values) (core.Period, error) {
	s := strings.TrimSpace(query.Get("period"))
	if s == "" {
		return core.Period{}, nil
	}
	return core.ParsePeriod(s)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
