package model

import (
	"sort"
	"strings"
)

// naturalToken is one run of a key: either a number or a lowercased string.
type naturalToken struct {
	isNum bool
	num   int
	str   string
}

func naturalTokens(s string) []naturalToken {
	var toks []naturalToken
	i := 0
	for i < len(s) {
		j := i
		if s[i] >= '0' && s[i] <= '9' {
			n := 0
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				n = n*10 + int(s[j]-'0')
				j++
			}
			toks = append(toks, naturalToken{isNum: true, num: n})
		} else {
			for j < len(s) && (s[j] < '0' || s[j] > '9') {
				j++
			}
			toks = append(toks, naturalToken{str: strings.ToLower(s[i:j])})
		}
		i = j
	}
	return toks
}

// NaturalLess compares two keys so that embedded numbers are compared as
// integers rather than lexically: "Q9-1" < "Q10-1". Non-numeric runs are
// compared case-insensitively.
func NaturalLess(a, b string) bool {
	ta, tb := naturalTokens(a), naturalTokens(b)
	for i := 0; i < len(ta) && i < len(tb); i++ {
		x, y := ta[i], tb[i]
		switch {
		case x.isNum && y.isNum:
			if x.num != y.num {
				return x.num < y.num
			}
		case !x.isNum && !y.isNum:
			if x.str != y.str {
				return x.str < y.str
			}
		default:
			// Numbers sort before strings at the same position.
			return x.isNum
		}
	}
	return len(ta) < len(tb)
}

// SortNatural sorts keys in place using NaturalLess.
func SortNatural(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return NaturalLess(keys[i], keys[j])
	})
}
