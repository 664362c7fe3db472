// Package validate contains pure validation helpers for contact identifiers.
//
// These functions gate free-tier signup and the paid checkout flow. They are
// deterministic, make no network calls, and are safe to call from any layer.
package validate

import "strings"

const (
	// MinPhoneDigits and MaxPhoneDigits bound the digit count after
	// stripping formatting characters (E.164 allows up to 15 digits).
	MinPhoneDigits = 7
	MaxPhoneDigits = 15

	// maxRepeatRun is the longest allowed run of a single repeated digit.
	// A run of 7 or more anywhere in the number is rejected.
	maxRepeatRun = 6

	// sequenceWindow is the length of the sliding window checked for
	// strictly ascending or descending digit sequences. Eight keeps
	// "1234567890" out while letting real numbers that merely contain
	// "1234567" (e.g. +1 555 123 4567) through.
	sequenceWindow = 8
)

// placeholderNumbers lists common fake numbers people type into forms.
// Checked against the digit string as-is, and with a leading country code
// "1" stripped when the number is 11 digits long.
var placeholderNumbers = map[string]struct{}{
	"1234567":    {},
	"7654321":    {},
	"1234567890": {},
	"0123456789": {},
	"9876543210": {},
	"0987654321": {},
	"1112223333": {},
	"1231231234": {},
	"1234512345": {},
	"1010101010": {},
}

// IsValidPhone reports whether raw looks like a plausible real phone number.
//
// The checks run in order:
//  1. Digit count must be within [7, 15] after stripping formatting.
//  2. All-identical numbers are rejected.
//  3. Any run of 7+ identical consecutive digits is rejected.
//  4. Any 8-digit window that ascends or descends strictly by one
//     (with mod-10 wraparound, so "89012345" counts) is rejected.
//  5. Known placeholder numbers are rejected, both as-is and with a
//     leading "1" stripped from 11-digit numbers.
func IsValidPhone(raw string) bool {
	digits := stripNonDigits(raw)

	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return false
	}

	if allIdentical(digits) {
		return false
	}

	if hasRepeatRun(digits, maxRepeatRun+1) {
		return false
	}

	if hasSequentialRun(digits, sequenceWindow) {
		return false
	}

	if _, ok := placeholderNumbers[digits]; ok {
		return false
	}
	if len(digits) == 11 && digits[0] == '1' {
		if _, ok := placeholderNumbers[digits[1:]]; ok {
			return false
		}
	}

	return true
}

// NormalizePhone strips everything except digits, preserving a leading "+"
// when the original input carried one.
func NormalizePhone(raw string) string {
	digits := stripNonDigits(raw)
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return "+" + digits
	}
	return digits
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func allIdentical(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// hasRepeatRun reports whether digits contains n or more identical
// consecutive digits anywhere in the string.
func hasRepeatRun(digits string, n int) bool {
	run := 1
	for i := 1; i < len(digits); i++ {
		if digits[i] == digits[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasSequentialRun reports whether any window of the given size is a
// strictly ascending or strictly descending digit sequence. Sequences wrap
// mod 10, so "8901" continues the ascending cycle.
func hasSequentialRun(digits string, window int) bool {
	if len(digits) < window {
		return false
	}
	for start := 0; start+window <= len(digits); start++ {
		asc, desc := true, true
		for i := start + 1; i < start+window; i++ {
			prev := digits[i-1] - '0'
			cur := digits[i] - '0'
			if cur != (prev+1)%10 {
				asc = false
			}
			if cur != (prev+9)%10 {
				desc = false
			}
			if !asc && !desc {
				break
			}
		}
		if asc || desc {
			return true
		}
	}
	return false
}
