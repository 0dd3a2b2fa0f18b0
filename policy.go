package cmp

import (
	"fmt"
	"strings"
)

// Requirement states whether a message element must, may or must not appear.
type Requirement int

const (
	Optional Requirement = iota
	Required
	Forbidden
)

var requirementNames = [...]string{"optional", "required", "forbidden"}

func (r Requirement) String() string {
	if r < 0 || int(r) >= len(requirementNames) {
		return fmt.Sprintf("Requirement(%d)", int(r))
	}
	return requirementNames[r]
}

// ParseRequirement returns the Requirement named s ("optional", "required"
// or "forbidden"). The match ignores case.
func ParseRequirement(s string) (Requirement, error) {
	for i, n := range requirementNames {
		if strings.EqualFold(n, s) {
			return Requirement(i), nil
		}
	}
	return 0, newConfigError(fmt.Sprintf("unknown requirement %q", s))
}

// BodyRule is the header and protection rule applied to one body type.
type BodyRule struct {
	TransactionID bool
	SenderNonce   bool
	Protection    Requirement
}

// Policy maps every body type to a BodyRule. A Policy must not be modified
// while it is in use by a concurrent call.
type Policy struct {
	Name  string
	rules [numBodyTypes]BodyRule
}

// NewPolicy returns a policy under which every field is optional.
func NewPolicy(name string) *Policy {
	return &Policy{Name: name}
}

// DefaultPolicy follows RFC 4210 as updated by RFC 9480: every body that
// takes part in a transaction needs a transactionID. The CA announcements
// are sent outside any transaction and need none. Protection is optional
// everywhere.
func DefaultPolicy() *Policy {
	p := NewPolicy("default")
	for t := BodyType(0); t < numBodyTypes; t++ {
		p.rules[t].TransactionID = !t.IsAnnouncement()
	}
	return p
}

// LightweightPolicy follows the Lightweight CMP Profile (RFC 9483): every
// non-announcement body also needs a senderNonce and protection, except that
// an error message may be sent unprotected.
func LightweightPolicy() *Policy {
	p := NewPolicy("lightweight")
	for t := BodyType(0); t < numBodyTypes; t++ {
		if t.IsAnnouncement() {
			continue
		}
		p.rules[t] = BodyRule{TransactionID: true, SenderNonce: true, Protection: Required}
	}
	p.rules[BodyError].Protection = Optional
	return p
}

// PolicyByName returns the built-in policy called name: "default",
// "lightweight" or "none".
func PolicyByName(name string) (*Policy, error) {
	switch strings.ToLower(name) {
	case "default", "":
		return DefaultPolicy(), nil
	case "lightweight":
		return LightweightPolicy(), nil
	case "none":
		return NewPolicy("none"), nil
	}
	return nil, newConfigError(fmt.Sprintf("unknown policy %q", name))
}

// Rule returns the rule for t. Unknown types get the zero rule.
func (p *Policy) Rule(t BodyType) BodyRule {
	if p == nil || !t.Valid() {
		return BodyRule{}
	}
	return p.rules[t]
}

// SetRule replaces the rule for t.
func (p *Policy) SetRule(t BodyType, r BodyRule) error {
	if !t.Valid() {
		return newConfigError(fmt.Sprintf("cannot set rule for %s", t))
	}
	if r.Protection < Optional || r.Protection > Forbidden {
		return newConfigError(fmt.Sprintf("invalid protection requirement %d", int(r.Protection)))
	}
	p.rules[t] = r
	return nil
}

// Clone returns an independent copy of p, or nil when p is nil.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
