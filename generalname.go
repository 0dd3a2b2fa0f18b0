package cmp

import (
	"bytes"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// GeneralNameKind identifies the alternative of a GeneralName CHOICE
// (RFC 5280 §4.2.1.6). The value is the context tag number.
type GeneralNameKind int

const (
	NameOther GeneralNameKind = iota
	NameRFC822
	NameDNS
	NameX400Address
	NameDirectory
	NameEDIParty
	NameURI
	NameIPAddress
	NameRegisteredID
)

var nameKindNames = [...]string{
	"otherName", "rfc822Name", "dNSName", "x400Address", "directoryName",
	"ediPartyName", "uniformResourceIdentifier", "iPAddress", "registeredID",
}

func (k GeneralNameKind) String() string {
	if k < 0 || int(k) >= len(nameKindNames) {
		return fmt.Sprintf("GeneralNameKind(%d)", int(k))
	}
	return nameKindNames[k]
}

// constructed reports whether the alternative is encoded with the constructed bit.
func (k GeneralNameKind) constructed() bool {
	switch k {
	case NameOther, NameX400Address, NameDirectory, NameEDIParty:
		return true
	}
	return false
}

// GeneralName holds one well-formed GeneralName element. Values are immutable
// and can only be obtained from the constructors or from ParseGeneralName, so
// a non-zero GeneralName always encodes to valid DER. The zero value means
// "not set" and is rejected when a message is encoded.
type GeneralName struct {
	raw []byte
}

// ParseGeneralName parses a single DER-encoded GeneralName.
func ParseGeneralName(der []byte) (GeneralName, error) {
	s := cryptobyte.String(der)
	g, err := readGeneralName(&s, "GeneralName")
	if err != nil {
		return GeneralName{}, err
	}
	if !s.Empty() {
		return GeneralName{}, trailing("GeneralName")
	}
	return g, nil
}

// DirectoryName returns a directoryName GeneralName for name.
func DirectoryName(name pkix.Name) (GeneralName, error) {
	der, err := asn1.Marshal(name.ToRDNSequence())
	if err != nil {
		return GeneralName{}, wrapError(CodeMalformedName, "marshaling directoryName", err)
	}
	return buildGeneralName(NameDirectory, der), nil
}

// NullDN returns the empty directoryName used when a sender or recipient has
// no name, for example an end entity that authenticates with a MAC only.
func NullDN() GeneralName {
	return GeneralName{raw: []byte{0xa4, 0x02, 0x30, 0x00}}
}

// RFC822Name returns an rfc822Name GeneralName. addr must be ASCII.
func RFC822Name(addr string) (GeneralName, error) {
	return ia5Name(NameRFC822, addr)
}

// DNSName returns a dNSName GeneralName. name must be ASCII.
func DNSName(name string) (GeneralName, error) {
	return ia5Name(NameDNS, name)
}

// URIName returns a uniformResourceIdentifier GeneralName. uri must be ASCII.
func URIName(uri string) (GeneralName, error) {
	return ia5Name(NameURI, uri)
}

// IPAddressName returns an iPAddress GeneralName holding the 4 or 16 byte form of ip.
func IPAddressName(ip net.IP) (GeneralName, error) {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if len(ip) != net.IPv4len && len(ip) != net.IPv6len {
		return GeneralName{}, newError(CodeMalformedName, "iPAddress must be 4 or 16 bytes")
	}
	return buildGeneralName(NameIPAddress, ip), nil
}

func ia5Name(kind GeneralNameKind, v string) (GeneralName, error) {
	if !isIA5([]byte(v)) {
		return GeneralName{}, newError(CodeMalformedName, kind.String()+" contains non-IA5 characters")
	}
	return buildGeneralName(kind, []byte(v)), nil
}

func buildGeneralName(kind GeneralNameKind, content []byte) GeneralName {
	tag := cryptobyte_asn1.Tag(kind).ContextSpecific()
	if kind.constructed() {
		tag = tag.Constructed()
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(tag, func(b *cryptobyte.Builder) {
		b.AddBytes(content)
	})
	return GeneralName{raw: b.BytesOrPanic()}
}

// IsZero reports whether g is unset.
func (g GeneralName) IsZero() bool {
	return len(g.raw) == 0
}

// Kind returns the CHOICE alternative of g, or -1 when g is unset.
func (g GeneralName) Kind() GeneralNameKind {
	if g.IsZero() {
		return -1
	}
	return GeneralNameKind(g.raw[0] & 0x1f)
}

// Bytes returns a copy of the DER encoding of g.
func (g GeneralName) Bytes() []byte {
	return bytes.Clone(g.raw)
}

// Equal reports whether g and other have the same encoding.
func (g GeneralName) Equal(other GeneralName) bool {
	return bytes.Equal(g.raw, other.raw)
}

// content returns the contents octets of the element.
func (g GeneralName) content() []byte {
	s := cryptobyte.String(g.raw)
	var out cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1(&out, &tag) {
		return nil
	}
	return out
}

// DirectoryName returns the name held by a directoryName GeneralName.
func (g GeneralName) DirectoryName() (pkix.Name, bool) {
	if g.Kind() != NameDirectory {
		return pkix.Name{}, false
	}
	var rdns pkix.RDNSequence
	if _, err := asn1.Unmarshal(g.content(), &rdns); err != nil {
		return pkix.Name{}, false
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdns)
	return name, true
}

// String returns a short human-readable form such as "DNS:example.com".
func (g GeneralName) String() string {
	if g.IsZero() {
		return "<unset>"
	}
	c := g.content()
	switch g.Kind() {
	case NameRFC822:
		return "email:" + string(c)
	case NameDNS:
		return "DNS:" + string(c)
	case NameURI:
		return "URI:" + string(c)
	case NameIPAddress:
		return "IP:" + net.IP(c).String()
	case NameDirectory:
		name, _ := g.DirectoryName()
		return "DirName:" + name.String()
	case NameRegisteredID:
		if oid, ok := parseOIDContent(c); ok {
			return "RID:" + oid.String()
		}
	case NameOther:
		s := cryptobyte.String(c)
		var oid asn1.ObjectIdentifier
		if s.ReadASN1ObjectIdentifier(&oid) {
			return "othername:" + oid.String()
		}
	}
	return g.Kind().String()
}

func readGeneralName(s *cryptobyte.String, what string) (GeneralName, error) {
	var el cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1Element(&el, &tag) {
		return GeneralName{}, malformed(what)
	}
	if err := checkGeneralName(el, what); err != nil {
		return GeneralName{}, err
	}
	return GeneralName{raw: bytes.Clone(el)}, nil
}

func addGeneralName(b *cryptobyte.Builder, g GeneralName, what string) {
	if g.IsZero() {
		b.SetError(newError(CodeMalformedName, what+" is not set"))
		return
	}
	b.AddBytes(g.raw)
}

// checkGeneralName validates one complete GeneralName element.
func checkGeneralName(el cryptobyte.String, what string) error {
	var c cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !el.ReadAnyASN1(&c, &tag) {
		return malformed(what)
	}
	bad := func(reason string) error {
		return newError(CodeMalformedName, fmt.Sprintf("%s: %s", what, reason))
	}
	if tag&0xc0 != 0x80 {
		return bad("not a context-specific alternative")
	}
	kind := GeneralNameKind(tag & 0x1f)
	if kind > NameRegisteredID {
		return bad(fmt.Sprintf("unknown alternative [%d]", int(kind)))
	}
	if (tag&0x20 != 0) != kind.constructed() {
		return bad(kind.String() + " has the wrong constructed bit")
	}
	switch kind {
	case NameOther:
		var oid asn1.ObjectIdentifier
		var v cryptobyte.String
		if !c.ReadASN1ObjectIdentifier(&oid) || !c.ReadASN1(&v, explicitTag(0)) || !c.Empty() || !isAnyElement(v) {
			return bad("malformed otherName")
		}
	case NameRFC822, NameDNS, NameURI:
		if !isIA5(c) {
			return bad(kind.String() + " contains non-IA5 characters")
		}
	case NameX400Address, NameEDIParty:
		for !c.Empty() {
			var inner cryptobyte.String
			var t cryptobyte_asn1.Tag
			if !c.ReadAnyASN1Element(&inner, &t) {
				return bad("malformed " + kind.String())
			}
		}
	case NameDirectory:
		var rdns pkix.RDNSequence
		rest, err := asn1.Unmarshal(c, &rdns)
		if err != nil || len(rest) > 0 {
			return bad("directoryName is not a single RDNSequence")
		}
	case NameIPAddress:
		if len(c) != net.IPv4len && len(c) != net.IPv6len {
			return bad("iPAddress must be 4 or 16 bytes")
		}
	case NameRegisteredID:
		if _, ok := parseOIDContent(c); !ok {
			return bad("registeredID is not an object identifier")
		}
	}
	return nil
}

// parseOIDContent parses the contents octets of an implicitly tagged OBJECT IDENTIFIER.
func parseOIDContent(content []byte) (asn1.ObjectIdentifier, bool) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.OBJECT_IDENTIFIER, func(b *cryptobyte.Builder) {
		b.AddBytes(content)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, false
	}
	s := cryptobyte.String(der)
	var oid asn1.ObjectIdentifier
	if !s.ReadASN1ObjectIdentifier(&oid) || !s.Empty() {
		return nil, false
	}
	return oid, true
}

func isIA5(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
