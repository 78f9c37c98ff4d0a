// Package mvnver implements Maven version ordering, the comparison rule
// shared by all JVM build systems this tool supports.
package mvnver

import (
	"strconv"
	"strings"
	"unicode"
)

// qualifier rank per the Maven ComparableVersion rules. The empty qualifier
// ("release") sorts between snapshot and sp; anything unknown sorts after sp
// and falls back to lexical comparison among unknowns.
var qualifierRank = map[string]int{
	"alpha":     1,
	"a":         1,
	"beta":      2,
	"b":         2,
	"milestone": 3,
	"m":         3,
	"rc":        4,
	"cr":        4,
	"snapshot":  5,
	"":          6,
	"final":     6,
	"ga":        6,
	"release":   6,
	"sp":        7,
}

const unknownRank = 8

type item struct {
	num     int64
	qual    string
	numeric bool
}

// Version is a parsed Maven version string.
type Version struct {
	raw   string
	items []item
}

// Parse tokenizes a Maven version. Parsing never fails: Maven treats any
// string as a version, so arbitrary qualifiers are preserved verbatim.
func Parse(raw string) Version {
	s := strings.ToLower(strings.TrimSpace(raw))
	var items []item
	var buf strings.Builder
	prevDigit := false

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		tok := buf.String()
		buf.Reset()
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			items = append(items, item{num: n, numeric: true})
		} else {
			items = append(items, item{qual: tok})
		}
	}

	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == '_':
			flush()
		case unicode.IsDigit(r):
			if buf.Len() > 0 && !prevDigit {
				flush()
			}
			buf.WriteRune(r)
			prevDigit = true
		default:
			if buf.Len() > 0 && prevDigit {
				flush()
			}
			buf.WriteRune(r)
			prevDigit = false
		}
	}
	flush()

	// Trim trailing null items so 1.0 == 1.0.0 == 1.0-ga.
	for len(items) > 0 && items[len(items)-1].isNull() {
		items = items[:len(items)-1]
	}
	return Version{raw: raw, items: items}
}

func (it item) isNull() bool {
	if it.numeric {
		return it.num == 0
	}
	return qualifierRank[it.qual] == 6 && (it.qual == "" || it.qual == "final" || it.qual == "ga" || it.qual == "release")
}

func (it item) rank() int {
	if r, ok := qualifierRank[it.qual]; ok {
		return r
	}
	return unknownRank
}

func (v Version) String() string { return v.raw }

// Compare returns -1, 0 or 1 ordering v against o.
func (v Version) Compare(o Version) int {
	n := len(v.items)
	if len(o.items) > n {
		n = len(o.items)
	}
	for i := 0; i < n; i++ {
		a := item{numeric: true} // null padding
		b := item{numeric: true}
		if i < len(v.items) {
			a = v.items[i]
		}
		if i < len(o.items) {
			b = o.items[i]
		}
		if c := compareItem(a, b); c != 0 {
			return c
		}
	}
	return 0
}

func compareItem(a, b item) int {
	switch {
	case a.numeric && b.numeric:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.numeric:
		return -compareNumQual(a, b)
	case b.numeric:
		return compareNumQual(b, a)
	default:
		ra, rb := a.rank(), b.rank()
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		case ra == unknownRank:
			return strings.Compare(a.qual, b.qual)
		}
		return 0
	}
}

// compareNumQual orders a numeric item against a qualifier item, returning
// the comparison from the qualifier's point of view. A positive number beats
// every qualifier; the zero padding item sits with the release qualifiers,
// above alpha..snapshot and below sp.
func compareNumQual(num, qual item) int {
	if num.num > 0 {
		return -1
	}
	switch r := qual.rank(); {
	case r < 6:
		return -1
	case r == 6:
		return 0
	default:
		return 1
	}
}

// Compare orders two raw version strings.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}
