// Package shared contains common domain types and errors that are used
// across all domain packages.
package shared

import (
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// EJID represents the ejudge numeric user identifier. Any integer is a
// well-formed ID; whether it belongs to a student is decided by lookup.
type EJID int

// Int returns the underlying int value.
func (id EJID) Int() int {
	return int(id)
}

// String returns the string representation.
func (id EJID) String() string {
	return strconv.Itoa(int(id))
}

// ParseEJID parses a textual ejudge ID, as found in the standings page
// attribute or in a request path. Only non-numeric text is rejected.
func ParseEJID(s string) (EJID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, WrapError("standings", "ParseEJID", ErrInvalidID, "ejudge ID is not a number", err)
	}
	return EJID(n), nil
}

// ContestRange identifies the span of ejudge contests merged into one
// standings page (e.g. "030813".."030817").
type ContestRange struct {
	From string
	To   string
}

// IsValid checks that both ends of the range are set.
func (r ContestRange) IsValid() bool {
	return strings.TrimSpace(r.From) != "" && strings.TrimSpace(r.To) != ""
}

// String returns the "from-to" representation.
func (r ContestRange) String() string {
	return r.From + "-" + r.To
}
