package pkiasn1

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type entry struct {
	oid  asn1.ObjectIdentifier
	name string
}

// db lists every named OID. Names follow the ASN.1 modules that define them.
var db = []entry{
	{OIDCAProtEncCert, "id-it-caProtEncCert"},
	{OIDSignKeyPairTypes, "id-it-signKeyPairTypes"},
	{OIDEncKeyPairTypes, "id-it-encKeyPairTypes"},
	{OIDPreferredSymmAlg, "id-it-preferredSymmAlg"},
	{OIDCAKeyUpdateInfo, "id-it-caKeyUpdateInfo"},
	{OIDCurrentCRL, "id-it-currentCRL"},
	{OIDUnsupportedOIDs, "id-it-unsupportedOIDs"},
	{OIDKeyPairParamReq, "id-it-keyPairParamReq"},
	{OIDKeyPairParamRep, "id-it-keyPairParamRep"},
	{OIDRevPassphrase, "id-it-revPassphrase"},
	{OIDImplicitConfirm, "id-it-implicitConfirm"},
	{OIDConfirmWaitTime, "id-it-confirmWaitTime"},
	{OIDOrigPKIMessage, "id-it-origPKIMessage"},
	{OIDSuppLangTags, "id-it-suppLangTags"},
	{OIDCACerts, "id-it-caCerts"},
	{OIDRootCAKeyUpdate, "id-it-rootCaKeyUpdate"},
	{OIDCertReqTemplate, "id-it-certReqTemplate"},
	{OIDRootCACert, "id-it-rootCaCert"},
	{OIDCertProfile, "id-it-certProfile"},
	{OIDCRLStatusList, "id-it-crlStatusList"},
	{OIDCRLs, "id-it-crls"},

	{OIDPasswordBasedMac, "PasswordBasedMac"},
	{OIDKemBasedMac, "KemBasedMac"},
	{OIDDHBasedMac, "DHBasedMac"},
	{OIDPBMAC1, "id-PBMAC1"},

	{OIDSHA256, "id-sha256"},
	{OIDSHA384, "id-sha384"},
	{OIDSHA512, "id-sha512"},
	{OIDHMACSHA1, "hMAC-SHA1"},
	{OIDHMACSHA256, "id-hmacWithSHA256"},
	{OIDHMACSHA384, "id-hmacWithSHA384"},
	{OIDHMACSHA512, "id-hmacWithSHA512"},

	{OIDSHA256WithRSA, "sha256WithRSAEncryption"},
	{OIDSHA384WithRSA, "sha384WithRSAEncryption"},
	{OIDSHA512WithRSA, "sha512WithRSAEncryption"},
	{OIDRSASSAPSS, "id-RSASSA-PSS"},
	{OIDECDSAWithSHA256, "ecdsa-with-SHA256"},
	{OIDECDSAWithSHA384, "ecdsa-with-SHA384"},
	{OIDECDSAWithSHA512, "ecdsa-with-SHA512"},
	{OIDEd25519, "id-Ed25519"},
	{OIDEd448, "id-Ed448"},

	{OIDRegCtrlRegToken, "id-regCtrl-regToken"},
	{OIDRegCtrlAuthenticator, "id-regCtrl-authenticator"},
	{OIDRegCtrlOldCertID, "id-regCtrl-oldCertID"},
	{OIDRegInfoUTF8Pairs, "id-regInfo-utf8Pairs"},
	{OIDRegInfoCertReq, "id-regInfo-certReq"},
}

var (
	names  = make(map[string]string, len(db))
	byName = make(map[string]asn1.ObjectIdentifier, len(db))
)

func init() {
	for _, e := range db {
		names[e.oid.String()] = e.name
		byName[strings.ToLower(e.name)] = e.oid
	}
}

// Name returns the registered name of oid.
func Name(oid asn1.ObjectIdentifier) (string, bool) {
	name, ok := names[oid.String()]
	return name, ok
}

// Lookup returns the OID registered under name. The match ignores case.
func Lookup(name string) (asn1.ObjectIdentifier, bool) {
	oid, ok := byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return append(asn1.ObjectIdentifier{}, oid...), true
}

// Errors returned by ParseOID.
var (
	ErrEmpty         = errors.New("pkiasn1: empty OID")
	ErrNotEnoughArcs = errors.New("pkiasn1: OID needs at least two arcs")
	ErrArcInvalid    = errors.New("pkiasn1: invalid OID arc")
)

// Valid reports whether oid can be encoded: it has at least two arcs, the
// first arc is 0, 1 or 2, the second arc is below 40 under arcs 0 and 1, and
// no arc is negative.
func Valid(oid asn1.ObjectIdentifier) bool {
	return validate(oid) == nil
}

func validate(oid asn1.ObjectIdentifier) error {
	if len(oid) < 2 {
		return ErrNotEnoughArcs
	}
	if oid[0] < 0 || oid[0] > 2 {
		return fmt.Errorf("%w: first arc %d", ErrArcInvalid, oid[0])
	}
	if oid[0] < 2 && (oid[1] < 0 || oid[1] > 39) {
		return fmt.Errorf("%w: second arc %d under arc %d", ErrArcInvalid, oid[1], oid[0])
	}
	for _, a := range oid[1:] {
		if a < 0 {
			return fmt.Errorf("%w: negative arc", ErrArcInvalid)
		}
	}
	return nil
}

// ParseOID parses either a dotted decimal OID ("1.3.6.1.5.5.7.4.13") or a
// registered name ("id-it-implicitConfirm").
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	if oid, ok := Lookup(s); ok {
		return oid, nil
	}
	parts := strings.Split(s, ".")
	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		if p == "" || (len(p) > 1 && p[0] == '0') {
			return nil, fmt.Errorf("%w: %q in %q", ErrArcInvalid, p, s)
		}
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %q", ErrArcInvalid, p, s)
		}
		oid = append(oid, int(n))
	}
	if err := validate(oid); err != nil {
		return nil, err
	}
	return oid, nil
}
