// Package fingerprint computes the dedup key stored on every card.
//
// The key is a 32-bit rolling hash rendered in base 36. It is a convenience
// for spotting duplicate cards, not a security boundary: collisions are
// possible and acceptable.
package fingerprint

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

// Separator joins the normalized question and answer before hashing.
const Separator = "::"

// Normalize lowercases s, trims it and collapses every whitespace run to a
// single space.
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), isSpace), " ")
}

// isSpace matches the ECMAScript whitespace set, which the web client
// normalizes with: unicode.IsSpace plus U+FEFF, without U+0085.
func isSpace(r rune) bool {
	switch r {
	case '\u0085':
		return false
	case '\ufeff':
		return true
	}
	return unicode.IsSpace(r)
}

// Compute returns the fingerprint of a question/answer pair. Casing and
// whitespace differences do not change the result.
func Compute(question, answer string) string {
	return hash(Normalize(question) + Separator + Normalize(answer))
}

// Of is Compute for loosely typed input. Anything that is not a string is
// treated as the empty string.
func Of(question, answer any) string {
	return Compute(asString(question), asString(answer))
}

func asString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// hash folds UTF-16 code units into a wrapping int32 (h*31 + c) and renders
// the absolute value in base 36, so keys match the ones already stored by
// the web client.
func hash(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
