package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError reports per-field problems with user input.
// It matches ErrInvalidData under errors.Is.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Error lists the field messages in field-name order.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes ValidationError match ErrInvalidData.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidData
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Coerce converts user input into a typed Record for this resource.
// Input values may be strings (HTML forms, CLI arguments) or decoded JSON
// values. Hidden, read-only and reserved keys are dropped; other unknown
// keys are rejected. When partial is false, absent fields take their
// default, booleans default to false and absent required fields fail.
// When partial is true only the present keys are converted.
func (r Resource) Coerce(input map[string]any, partial bool) (Record, error) {
	verr := &ValidationError{}
	out := make(Record)

	for key := range input {
		if reservedColumns[key] {
			continue
		}
		if _, ok := r.Field(key); !ok {
			verr.Add(key, "is not a field")
		}
	}

	for _, f := range r.Fields {
		if f.Hidden || f.ReadOnly {
			continue
		}
		raw, present := input[f.Name]
		if !present {
			if partial {
				continue
			}
			switch {
			case f.Default != "":
				raw = f.Default
			case f.Type == FieldBoolean:
				out[f.Name] = false
				continue
			default:
				raw = nil
			}
		}
		v, err := coerceValue(f, raw)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		if v == nil && f.Required {
			verr.Add(f.Name, "is required")
			continue
		}
		out[f.Name] = v
	}

	if !verr.Empty() {
		return nil, verr
	}
	return out, nil
}

// Timestamp layouts accepted from text input, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceValue converts one raw value for field f. It returns nil for empty
// input.
func CoerceValue(f Field, raw any) (any, error) {
	return coerceValue(f, raw)
}

func coerceValue(f Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && f.Type != FieldString && f.Type != FieldText {
		raw = strings.TrimSpace(s)
		if raw == "" {
			if f.Type == FieldBoolean {
				return false, nil
			}
			return nil, nil
		}
	}

	switch f.Type {
	case FieldString, FieldText:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("must be text")
		}
		if f.Type == FieldString {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			return nil, nil
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
			return nil, fmt.Errorf("must be at most %d characters", f.MaxLength)
		}
		return s, nil

	case FieldInteger:
		return toInt64(raw, "must be a whole number")

	case FieldMoney:
		if s, ok := raw.(string); ok {
			return ParseMoney(s)
		}
		return toInt64(raw, "must be an amount in minor units")

	case FieldDecimal:
		var n float64
		switch v := raw.(type) {
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.New("must be a number")
			}
			n = f
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, errors.New("must be a number")
			}
			n = f
		case float64:
			n = v
		case int:
			n = float64(v)
		case int64:
			n = float64(v)
		default:
			return nil, errors.New("must be a number")
		}
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, errors.New("must be a finite number")
		}
		return n, nil

	case FieldBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "1", "true", "on", "yes", "y":
				return true, nil
			case "0", "false", "off", "no", "n":
				return false, nil
			}
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f != 0, nil
			}
		case float64:
			return v != 0, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		}
		return nil, errors.New("must be true or false")

	case FieldTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t.UTC(), nil
				}
			}
		}
		return nil, errors.New("must be a date and time")

	case FieldEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("must be text")
		}
		for _, opt := range f.Options {
			if opt == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("must be one of %s", strings.Join(f.Options, ", "))

	case FieldReference:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("must be a record id")
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func toInt64(raw any, msg string) (any, error) {
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New(msg)
		}
		return n, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, errors.New(msg)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil, errors.New(msg)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	}
	return nil, errors.New(msg)
}

// maxMoneyWhole keeps whole*100+99 within int64.
const maxMoneyWhole = (math.MaxInt64 - 99) / 100

// ParseMoney parses a decimal amount such as "12.5" or "12.50" into minor
// units (1250). The whole part is digits with an optional leading "-"; at
// most two decimal digits are accepted.
func ParseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && !hasFrac {
		return 0, errors.New("must be an amount")
	}
	if !allDigits(whole) || (hasFrac && (frac == "" || !allDigits(frac))) {
		return 0, errors.New("must be an amount")
	}
	if len(frac) > 2 {
		return 0, errors.New("must have at most two decimal places")
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > maxMoneyWhole {
		return 0, errors.New("is too large")
	}
	c, _ := strconv.ParseInt(frac, 10, 64)
	n := w*100 + c
	if neg {
		n = -n
	}
	return n, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatMoney renders minor units as a decimal amount, e.g. 1250 -> "12.50".
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
