package domain

import (
	"strconv"
	"strings"
)

// Order is a dotted-decimal task position such as "2" or "2.1" for a nested
// sub-step. Ordering is lexicographic over the integer tuple, not over the
// string form, so "2.10" sorts after "2.9".
type Order []int

// ParseOrder splits a dotted order key into its integer components.
func ParseOrder(s string) (Order, error) {
	parts := strings.Split(s, ".")
	out := make(Order, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &ConfigError{Reason: "invalid order key segment: " + p}
		}
		out[i] = n
	}
	return out, nil
}

// String renders the order back to its dotted form.
func (o Order) String() string {
	parts := make([]string, len(o))
	for i, n := range o {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0, or 1 as o sorts before, equal to, or after other,
// comparing component-wise and treating a missing trailing component as 0
// ("2" sorts before "2.1").
func (o Order) Compare(other Order) int {
	n := len(o)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(o) {
			a = o[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// IsChildOf reports whether o is a direct nested sub-step of parent, i.e. o
// has exactly one more component than parent and shares its prefix.
func (o Order) IsChildOf(parent Order) bool {
	if len(o) != len(parent)+1 {
		return false
	}
	for i := range parent {
		if o[i] != parent[i] {
			return false
		}
	}
	return true
}

// SortOrders sorts order-key strings by their Compare semantics.
func SortOrders(keys []string) []string {
	type parsed struct {
		raw string
		ord Order
	}
	ps := make([]parsed, 0, len(keys))
	for _, k := range keys {
		ord, err := ParseOrder(k)
		if err != nil {
			continue
		}
		ps = append(ps, parsed{raw: k, ord: ord})
	}
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j-1].ord.Compare(ps[j].ord) > 0; j-- {
			ps[j-1], ps[j] = ps[j], ps[j-1]
		}
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}
