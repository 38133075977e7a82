// Package id generates prefixed, K-sortable identifiers ("prefix_suffix")
// for ledger entries, transfers, calls and tickets.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an id.
type Prefix string

const (
	PrefixEntry    Prefix = "le"
	PrefixTransfer Prefix = "tr"
	PrefixCall     Prefix = "call"
	PrefixTicket   Prefix = "tkt"
)

// New generates a new id with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

func NewEntry() string    { return New(PrefixEntry) }
func NewTransfer() string { return New(PrefixTransfer) }
func NewCall() string     { return New(PrefixCall) }
func NewTicket() string   { return New(PrefixTicket) }

// HasPrefix reports whether s parses as an id of the given type.
func HasPrefix(s string, prefix Prefix) bool {
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return string(tid.Prefix()) == string(prefix)
}
