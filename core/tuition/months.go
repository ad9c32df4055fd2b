package tuition

import "strings"

// monthTable is the canonical mapping of every accepted legacy "mesPago"
// representation to its calendar month. The mapping is explicit and closed
// on purpose: anything outside it is unrecognized, never guessed.
var monthTable = map[string]int{
	"1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6,
	"7": 7, "8": 8, "9": 9, "10": 10, "11": 11, "12": 12,

	"01": 1, "02": 2, "03": 3, "04": 4, "05": 5,
	"06": 6, "07": 7, "08": 8, "09": 9,

	"enero":      1,
	"febrero":    2,
	"marzo":      3,
	"abril":      4,
	"mayo":       5,
	"junio":      6,
	"julio":      7,
	"agosto":     8,
	"septiembre": 9,
	"setiembre":  9, // common variant
	"octubre":    10,
	"noviembre":  11,
	"diciembre":  12,
}

// NormalizeMonth maps a heterogeneous month representation (integer 1-12,
// zero-padded string or Spanish month name) to a calendar month.
// Matching is case-insensitive; unrecognized input yields ok=false rather
// than an error.
func NormalizeMonth(value string) (month int, ok bool) {
	month, ok = monthTable[strings.ToLower(strings.TrimSpace(value))]
	return month, ok
}
