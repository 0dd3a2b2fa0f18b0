package cmp

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// BodyType identifies the PKIBody alternative. Its value is the context tag
// number of the alternative.
type BodyType int

const (
	BodyIR       BodyType = 0  // initialization request
	BodyIP       BodyType = 1  // initialization response
	BodyCR       BodyType = 2  // certification request
	BodyCP       BodyType = 3  // certification response
	BodyP10CR    BodyType = 4  // PKCS #10 certification request
	BodyPOPDecC  BodyType = 5  // proof-of-possession challenge
	BodyPOPDecR  BodyType = 6  // proof-of-possession response
	BodyKUR      BodyType = 7  // key update request
	BodyKUP      BodyType = 8  // key update response
	BodyKRR      BodyType = 9  // key recovery request
	BodyKRP      BodyType = 10 // key recovery response
	BodyRR       BodyType = 11 // revocation request
	BodyRP       BodyType = 12 // revocation response
	BodyCCR      BodyType = 13 // cross-certification request
	BodyCCP      BodyType = 14 // cross-certification response
	BodyCKUAnn   BodyType = 15 // CA key update announcement
	BodyCAnn     BodyType = 16 // certificate announcement
	BodyRAnn     BodyType = 17 // revocation announcement
	BodyCRLAnn   BodyType = 18 // CRL announcement
	BodyPKIConf  BodyType = 19 // confirmation
	BodyNested   BodyType = 20 // nested messages
	BodyGenM     BodyType = 21 // general message
	BodyGenP     BodyType = 22 // general response
	BodyError    BodyType = 23 // error message
	BodyCertConf BodyType = 24 // certificate confirmation
	BodyPollReq  BodyType = 25 // polling request
	BodyPollRep  BodyType = 26 // polling response
)

const numBodyTypes = 27

var bodyTypeNames = [numBodyTypes]string{
	"ir", "ip", "cr", "cp", "p10cr", "popdecc", "popdecr", "kur", "kup",
	"krr", "krp", "rr", "rp", "ccr", "ccp", "ckuann", "cann", "rann",
	"crlann", "pkiconf", "nested", "genm", "genp", "error", "certConf",
	"pollReq", "pollRep",
}

// String returns the ASN.1 identifier of the alternative, such as "ir".
func (t BodyType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("BodyType(%d)", int(t))
	}
	return bodyTypeNames[t]
}

// Valid reports whether t is one of the 27 defined alternatives.
func (t BodyType) Valid() bool {
	return t >= 0 && t < numBodyTypes
}

// IsAnnouncement reports whether t is one of the CA announcements, which are
// sent outside of any transaction.
func (t BodyType) IsAnnouncement() bool {
	switch t {
	case BodyCKUAnn, BodyCAnn, BodyRAnn, BodyCRLAnn:
		return true
	}
	return false
}

// ParseBodyType returns the BodyType named by its ASN.1 identifier. The match
// ignores case.
func ParseBodyType(name string) (BodyType, error) {
	for i, n := range bodyTypeNames {
		if strings.EqualFold(n, name) {
			return BodyType(i), nil
		}
	}
	return 0, newError(CodeInvalidArgument, fmt.Sprintf("unknown body type %q", name))
}

// Body is the PKIBody CHOICE. The concrete types are IR, IP, CR, CP, P10CR,
// POPDecC, POPDecR, KUR, KUP, KRR, KRP, RR, RP, CCR, CCP, CKUAnn, CAnn, RAnn,
// CRLAnn, PKIConf, Nested, GenM, GenP, ErrorMsg, CertConf, PollReq and
// PollRep. The set is closed; other packages cannot add alternatives.
type Body interface {
	Type() BodyType
	// marshal appends the payload inside the body's explicit tag.
	marshal(b *cryptobyte.Builder)
}

func (IR) Type() BodyType       { return BodyIR }
func (IP) Type() BodyType       { return BodyIP }
func (CR) Type() BodyType       { return BodyCR }
func (CP) Type() BodyType       { return BodyCP }
func (P10CR) Type() BodyType    { return BodyP10CR }
func (POPDecC) Type() BodyType  { return BodyPOPDecC }
func (POPDecR) Type() BodyType  { return BodyPOPDecR }
func (KUR) Type() BodyType      { return BodyKUR }
func (KUP) Type() BodyType      { return BodyKUP }
func (KRR) Type() BodyType      { return BodyKRR }
func (KRP) Type() BodyType      { return BodyKRP }
func (RR) Type() BodyType       { return BodyRR }
func (RP) Type() BodyType       { return BodyRP }
func (CCR) Type() BodyType      { return BodyCCR }
func (CCP) Type() BodyType      { return BodyCCP }
func (CKUAnn) Type() BodyType   { return BodyCKUAnn }
func (CAnn) Type() BodyType     { return BodyCAnn }
func (RAnn) Type() BodyType     { return BodyRAnn }
func (CRLAnn) Type() BodyType   { return BodyCRLAnn }
func (PKIConf) Type() BodyType  { return BodyPKIConf }
func (Nested) Type() BodyType   { return BodyNested }
func (GenM) Type() BodyType     { return BodyGenM }
func (GenP) Type() BodyType     { return BodyGenP }
func (ErrorMsg) Type() BodyType { return BodyError }
func (CertConf) Type() BodyType { return BodyCertConf }
func (PollReq) Type() BodyType  { return BodyPollReq }
func (PollRep) Type() BodyType  { return BodyPollRep }

// readBody reads the PKIBody element. depth is the nesting depth of the
// message that carries the body.
func readBody(s *cryptobyte.String, depth int, cfg *config) (Body, error) {
	var content cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1(&content, &tag) {
		if n, ok := highBodyTag(*s); ok {
			return nil, unknownBodyType(n)
		}
		return nil, malformed("PKIBody")
	}
	if tag&0xc0 != 0x80 || tag&0x20 == 0 {
		return nil, newError(CodeMalformedEncoding, fmt.Sprintf("PKIBody has tag 0x%02x, want a constructed context-specific tag", uint8(tag)))
	}
	t := BodyType(tag & 0x1f)
	if !t.Valid() {
		return nil, unknownBodyType(int(t))
	}
	body, err := decodeBody(t, &content, depth, cfg)
	if err != nil {
		return nil, err
	}
	return body, finish(content, t.String()+" body")
}

// highBodyTag parses the identifier of a constructed context-specific
// element that uses the high-tag-number form, which cryptobyte rejects. Only
// the minimal DER form of tag numbers 31 and above is accepted.
func highBodyTag(s cryptobyte.String) (int, bool) {
	if len(s) < 2 || s[0] != 0xbf || s[1] == 0x80 {
		return 0, false
	}
	n := 0
	for i := 1; i < len(s) && i <= 4; i++ {
		n = n<<7 | int(s[i]&0x7f)
		if s[i]&0x80 == 0 {
			return n, n >= 31
		}
	}
	return 0, false
}

// decodeBody decodes the payload of alternative t from s.
func decodeBody(t BodyType, s *cryptobyte.String, depth int, cfg *config) (Body, error) {
	what := t.String()
	switch t {
	case BodyIR:
		m, err := readCertReqMessages(s, what)
		return IR(m), err
	case BodyCR:
		m, err := readCertReqMessages(s, what)
		return CR(m), err
	case BodyKUR:
		m, err := readCertReqMessages(s, what)
		return KUR(m), err
	case BodyKRR:
		m, err := readCertReqMessages(s, what)
		return KRR(m), err
	case BodyCCR:
		m, err := readCertReqMessages(s, what)
		return CCR(m), err
	case BodyIP:
		m, err := readCertRepMessage(s, what)
		return IP(m), err
	case BodyCP:
		m, err := readCertRepMessage(s, what)
		return CP(m), err
	case BodyKUP:
		m, err := readCertRepMessage(s, what)
		return KUP(m), err
	case BodyCCP:
		m, err := readCertRepMessage(s, what)
		return CCP(m), err
	case BodyP10CR:
		return readP10CR(s)
	case BodyPOPDecC:
		return readPOPDecC(s)
	case BodyPOPDecR:
		return readPOPDecR(s)
	case BodyKRP:
		return readKRP(s)
	case BodyRR:
		return readRR(s)
	case BodyRP:
		return readRP(s)
	case BodyCKUAnn:
		return readCKUAnn(s)
	case BodyCAnn:
		return readCAnn(s)
	case BodyRAnn:
		return readRAnn(s)
	case BodyCRLAnn:
		return readCRLAnn(s)
	case BodyPKIConf:
		return readPKIConf(s)
	case BodyNested:
		return readNested(s, depth, cfg)
	case BodyGenM:
		list, err := readGenContent(s, what)
		return GenM(list), err
	case BodyGenP:
		list, err := readGenContent(s, what)
		return GenP(list), err
	case BodyError:
		return readErrorMsg(s)
	case BodyCertConf:
		return readCertConf(s)
	case BodyPollReq:
		return readPollReq(s)
	case BodyPollRep:
		return readPollRep(s)
	}
	return nil, unknownBodyType(int(t))
}

func addBody(b *cryptobyte.Builder, body Body) {
	addExplicit(b, int(body.Type()), body.marshal)
}
