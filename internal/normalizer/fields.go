package normalizer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"grid-bot-dashboard/internal/models"
)

// object reads typed fields out of one JSON object. The first failure is kept
// in err and every later read becomes a no-op, so callers can read all fields
// and check err once.
type object struct {
	kind string
	raw  map[string]json.RawMessage
	err  error
}

func parseObject(kind string, data json.RawMessage) *object {
	o := &object{kind: kind}
	if isNull(data) {
		o.fail("data", "missing payload")
		return o
	}
	if err := json.Unmarshal(data, &o.raw); err != nil {
		o.fail("data", "payload is not an object")
	}
	return o
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (o *object) fail(field, reason string) {
	if o.err == nil {
		o.err = &models.FieldError{Kind: o.kind, Field: field, Reason: reason}
	}
}

func (o *object) has(key string) bool {
	raw, ok := o.raw[key]
	return ok && !isNull(raw)
}

// forbid rejects fields that belong to the other strategy variant.
func (o *object) forbid(keys ...string) {
	for _, k := range keys {
		if o.has(k) {
			o.fail(k, "field not allowed for this variant")
			return
		}
	}
}

// child returns the nested object under key.
func (o *object) child(key string) *object {
	c := &object{kind: o.kind}
	if o.err != nil {
		c.err = o.err
		return c
	}
	if !o.has(key) {
		c.fail(key, "required")
		return c
	}
	if err := json.Unmarshal(o.raw[key], &c.raw); err != nil {
		c.fail(key, "not an object")
	}
	return c
}

func (o *object) number(key string) float64 {
	if o.err != nil {
		return 0
	}
	if !o.has(key) {
		o.fail(key, "required")
		return 0
	}
	v, ok := parseNumber(o.raw[key])
	if !ok {
		o.fail(key, "not a finite number")
		return 0
	}
	return v
}

func (o *object) optNumber(key string) *float64 {
	if o.err != nil || !o.has(key) {
		return nil
	}
	v := o.number(key)
	if o.err != nil {
		return nil
	}
	return &v
}

func (o *object) integer(key string) int {
	v := o.number(key)
	if o.err != nil {
		return 0
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		o.fail(key, "not an integer")
		return 0
	}
	return int(v)
}

func (o *object) str(key string) string {
	s := o.optStr(key)
	if o.err == nil && s == "" {
		o.fail(key, "required")
	}
	return s
}

func (o *object) optStr(key string) string {
	if o.err != nil || !o.has(key) {
		return ""
	}
	var s string
	if err := json.Unmarshal(o.raw[key], &s); err != nil {
		o.fail(key, "not a string")
		return ""
	}
	return strings.TrimSpace(s)
}

func (o *object) boolean(key string) bool {
	if o.err != nil {
		return false
	}
	if !o.has(key) {
		o.fail(key, "required")
		return false
	}
	var b bool
	if err := json.Unmarshal(o.raw[key], &b); err != nil {
		o.fail(key, "not a boolean")
	}
	return b
}

func (o *object) optBool(key string) bool {
	if o.err != nil || !o.has(key) {
		return false
	}
	return o.boolean(key)
}

// id accepts an identifier sent either as a string or as a bare number.
func (o *object) id(key string) string {
	if o.err != nil || !o.has(key) {
		return ""
	}
	raw := bytes.TrimSpace(o.raw[key])
	if raw[0] == '"' {
		return o.optStr(key)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		o.fail(key, "not a string or number")
		return ""
	}
	return n.String()
}

func (o *object) array(key string) []json.RawMessage {
	if o.err != nil {
		return nil
	}
	if !o.has(key) {
		o.fail(key, "required")
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(o.raw[key], &items); err != nil {
		o.fail(key, "not an array")
		return nil
	}
	return items
}

func (o *object) variant(key string) models.Variant {
	s := o.str(key)
	if o.err != nil {
		return ""
	}
	switch v := models.Variant(strings.ToLower(s)); v {
	case models.SpotGrid, models.PerpGrid:
		return v
	}
	o.fail(key, "unknown strategy type "+strconv.Quote(s))
	return ""
}

func (o *object) optVariant(key string) models.Variant {
	if o.err != nil || !o.has(key) {
		return ""
	}
	return o.variant(key)
}

func (o *object) bias(key string) models.Bias {
	s := o.str(key)
	if o.err != nil {
		return ""
	}
	return o.toBias(key, s)
}

func (o *object) optBias(key string) models.Bias {
	s := o.optStr(key)
	if o.err != nil || s == "" {
		return ""
	}
	return o.toBias(key, s)
}

func (o *object) toBias(key, s string) models.Bias {
	switch b := models.Bias(strings.ToLower(s)); b {
	case models.BiasLong, models.BiasShort, models.BiasNeutral:
		return b
	}
	o.fail(key, "unknown bias "+strconv.Quote(s))
	return ""
}

func (o *object) side(key string) models.Side {
	s := o.str(key)
	if o.err != nil {
		return ""
	}
	switch strings.ToLower(s) {
	case "buy", "b", "bid":
		return models.Buy
	case "sell", "s", "a", "ask":
		return models.Sell
	}
	o.fail(key, "unknown side "+strconv.Quote(s))
	return ""
}

// parseNumber accepts JSON numbers and numeric strings, rejecting NaN and ±Inf.
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	var v float64
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = f
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
