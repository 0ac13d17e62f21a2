package dynamodb

import (
	"bytes"
	"strings"

	"github.com/nimbuslocal/nimbus/internal/ident"
	"github.com/shopspring/decimal"
)

// AttributeValue is the provider's tagged value union. Exactly one field is
// set; the JSON form matches the wire protocol's single-letter type codes.
type AttributeValue struct {
	S    *string                   `json:"S,omitempty"`
	N    *string                   `json:"N,omitempty"`
	B    []byte                    `json:"B,omitempty"`
	BOOL *bool                     `json:"BOOL,omitempty"`
	NULL *bool                     `json:"NULL,omitempty"`
	L    []AttributeValue          `json:"L,omitempty"`
	M    map[string]AttributeValue `json:"M,omitempty"`
	SS   []string                  `json:"SS,omitempty"`
	NS   []string                  `json:"NS,omitempty"`
	BS   [][]byte                  `json:"BS,omitempty"`
}

// Item maps attribute names to tagged values.
type Item map[string]AttributeValue

func stringValue(s string) AttributeValue {
	return AttributeValue{S: &s}
}

func numberValue(n string) AttributeValue {
	return AttributeValue{N: &n}
}

// Equal reports exact typed equality.
func (v AttributeValue) Equal(o AttributeValue) bool {
	switch {
	case v.S != nil:
		return o.S != nil && *v.S == *o.S
	case v.N != nil:
		return o.N != nil && *v.N == *o.N
	case v.B != nil:
		return o.B != nil && bytes.Equal(v.B, o.B)
	case v.BOOL != nil:
		return o.BOOL != nil && *v.BOOL == *o.BOOL
	case v.NULL != nil:
		return o.NULL != nil && *v.NULL == *o.NULL
	case v.L != nil:
		if o.L == nil || len(v.L) != len(o.L) {
			return false
		}
		for i := range v.L {
			if !v.L[i].Equal(o.L[i]) {
				return false
			}
		}
		return true
	case v.M != nil:
		if o.M == nil || len(v.M) != len(o.M) {
			return false
		}
		for k, mv := range v.M {
			ov, ok := o.M[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case v.SS != nil:
		return o.SS != nil && stringSliceEqual(v.SS, o.SS)
	case v.NS != nil:
		return o.NS != nil && stringSliceEqual(v.NS, o.NS)
	case v.BS != nil:
		if o.BS == nil || len(v.BS) != len(o.BS) {
			return false
		}
		for i := range v.BS {
			if !bytes.Equal(v.BS[i], o.BS[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// extractString returns the scalar string form, preferring S, then N,
// then B.
func (v AttributeValue) extractString() (string, bool) {
	switch {
	case v.S != nil:
		return *v.S, true
	case v.N != nil:
		return *v.N, true
	case v.B != nil:
		return ident.B64Encode(v.B), true
	}
	return "", false
}

func (v AttributeValue) number() (decimal.Decimal, bool) {
	if v.N == nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*v.N))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// compareValues implements the typed ordering: decimal comparison when both
// operands are numeric, else lexicographic on the extracted string forms.
// A missing operand sorts before a present one.
func compareValues(a, b *AttributeValue) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if na, ok := a.number(); ok {
		if nb, ok := b.number(); ok {
			return na.Cmp(nb)
		}
	}

	sa, _ := a.extractString()
	sb, _ := b.extractString()
	return strings.Compare(sa, sb)
}

// renderNumber formats an arithmetic result the way the provider does:
// whole values below 1e15 render as integers, the rest as decimals.
func renderNumber(d decimal.Decimal) string {
	if d.IsInteger() && d.Abs().LessThan(decimal.New(1, 15)) {
		return d.Truncate(0).String()
	}
	return d.String()
}
