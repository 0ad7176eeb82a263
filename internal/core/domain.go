package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// DateLayout is the calendar date format used for storage and exchange.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds the description in runes.
const MaxDescriptionLength = 200

type (
	TxType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single recorded income or expense event.
	Transaction struct {
		ID          string `json:"id"`
		Type        TxType `json:"type"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
)

// ParseType accepts exactly "income" or "expense" (case-insensitive).
func ParseType(s string) (TxType, error) {
	switch TxType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", ErrInvalidType
}

// CoerceType maps anything that is not "income" to Expense.
func CoerceType(s string) TxType {
	if t, err := ParseType(s); err == nil {
		return t
	}
	return Expense
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

func (t TxType) String() string {
	return string(t)
}

// UnmarshalJSON coerces any value, including non-strings, to a valid type.
func (t *TxType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = Expense
		return nil
	}
	*t = CoerceType(s)
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the calendar date of now in its own location.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "" or null as a missing date.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Normalize trims labels, coerces the type and fills a missing date.
// It never touches the ID.
func (t *Transaction) Normalize(now time.Time) {
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	t.Type = CoerceType(string(t.Type))
	if t.Date.IsZero() {
		t.Date = Today(now)
	}
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return t.Date.Validate()
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool {
	return t.Type == Income
}
