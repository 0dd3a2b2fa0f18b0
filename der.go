package cmp

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// The CMP module is defined with EXPLICIT TAGS, so every context tag in a CMP
// structure wraps a complete inner element.
func explicitTag(n int) cryptobyte_asn1.Tag {
	return cryptobyte_asn1.Tag(n).ContextSpecific().Constructed()
}

func readSequence(s *cryptobyte.String, what string) (cryptobyte.String, error) {
	var out cryptobyte.String
	if !s.ReadASN1(&out, cryptobyte_asn1.SEQUENCE) {
		return nil, malformed(what)
	}
	return out, nil
}

func readOptionalSequence(s *cryptobyte.String, what string) (cryptobyte.String, bool, error) {
	var out cryptobyte.String
	var present bool
	if !s.ReadOptionalASN1(&out, &present, cryptobyte_asn1.SEQUENCE) {
		return nil, false, malformed(what)
	}
	return out, present, nil
}

// readExplicit reads an optional EXPLICIT [n] wrapper and returns its contents.
func readExplicit(s *cryptobyte.String, n int, what string) (cryptobyte.String, bool, error) {
	var out cryptobyte.String
	var present bool
	if !s.ReadOptionalASN1(&out, &present, explicitTag(n)) {
		return nil, false, malformed(what)
	}
	return out, present, nil
}

// finish reports bytes left over once every field of a structure was read.
func finish(s cryptobyte.String, what string) error {
	if !s.Empty() {
		return trailing(what)
	}
	return nil
}

func readInt64(s *cryptobyte.String, what string) (int64, error) {
	var v int64
	if !s.ReadASN1Integer(&v) {
		return 0, malformed(what)
	}
	return v, nil
}

func readBigInt(s *cryptobyte.String, what string) (*big.Int, error) {
	v := new(big.Int)
	if !s.ReadASN1Integer(v) {
		return nil, malformed(what)
	}
	return v, nil
}

// readOctetString returns a copy of the OCTET STRING contents. A present but
// empty OCTET STRING yields a non-nil empty slice so that presence survives.
func readOctetString(s *cryptobyte.String, what string) ([]byte, error) {
	var out cryptobyte.String
	if !s.ReadASN1(&out, cryptobyte_asn1.OCTET_STRING) {
		return nil, malformed(what)
	}
	return append([]byte{}, out...), nil
}

func readUTF8String(s *cryptobyte.String, what string) (string, error) {
	var out cryptobyte.String
	if !s.ReadASN1(&out, cryptobyte_asn1.UTF8String) || !utf8.Valid(out) {
		return "", malformed(what)
	}
	return string(out), nil
}

// readGeneralizedTime accepts only the DER form YYYYMMDDHHMMSSZ.
func readGeneralizedTime(s *cryptobyte.String, what string) (time.Time, error) {
	var raw cryptobyte.String
	peek := *s
	if !peek.ReadASN1(&raw, cryptobyte_asn1.GeneralizedTime) || len(raw) == 0 || raw[len(raw)-1] != 'Z' {
		return time.Time{}, malformed(what)
	}
	var t time.Time
	if !s.ReadASN1GeneralizedTime(&t) {
		return time.Time{}, malformed(what)
	}
	return t.UTC(), nil
}

func readBitString(s *cryptobyte.String, what string) (asn1.BitString, error) {
	var bs asn1.BitString
	if !s.ReadASN1BitString(&bs) {
		return asn1.BitString{}, malformed(what)
	}
	return asn1.BitString{Bytes: append([]byte{}, bs.Bytes...), BitLength: bs.BitLength}, nil
}

// readElement returns a copy of the next complete element (tag, length and
// contents) carrying the given tag.
func readElement(s *cryptobyte.String, tag cryptobyte_asn1.Tag, what string) ([]byte, error) {
	var out cryptobyte.String
	if !s.ReadASN1Element(&out, tag) {
		return nil, malformed(what)
	}
	return bytes.Clone(out), nil
}

func readAnyElement(s *cryptobyte.String, what string) ([]byte, cryptobyte_asn1.Tag, error) {
	var out cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1Element(&out, &tag) {
		return nil, 0, malformed(what)
	}
	return bytes.Clone(out), tag, nil
}

func readCertificate(s *cryptobyte.String, what string) (*x509.Certificate, error) {
	der, err := readElement(s, cryptobyte_asn1.SEQUENCE, what)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, wrapError(CodeMalformedCertificate, "parsing "+what, err)
	}
	return cert, nil
}

// readCertificates decodes the contents of a SEQUENCE OF CMPCertificate.
func readCertificates(s cryptobyte.String, what string) ([]*x509.Certificate, error) {
	certs := []*x509.Certificate{}
	for !s.Empty() {
		cert, err := readCertificate(&s, what)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// readCRLs decodes the contents of a SEQUENCE OF CertificateList.
func readCRLs(s cryptobyte.String, what string) ([]*x509.RevocationList, error) {
	crls := []*x509.RevocationList{}
	for !s.Empty() {
		der, err := readElement(&s, cryptobyte_asn1.SEQUENCE, what)
		if err != nil {
			return nil, err
		}
		crl, err := x509.ParseRevocationList(der)
		if err != nil {
			return nil, wrapError(CodeMalformedCertificate, "parsing "+what, err)
		}
		crls = append(crls, crl)
	}
	return crls, nil
}

func readAlgorithmIdentifier(s *cryptobyte.String, what string) (pkix.AlgorithmIdentifier, error) {
	der, err := readElement(s, cryptobyte_asn1.SEQUENCE, what)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}
	alg, err := unmarshalCanonical[pkix.AlgorithmIdentifier](der)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, wrapError(CodeMalformedEncoding, "parsing "+what, err)
	}
	return alg, nil
}

func readOptionalExtensions(s *cryptobyte.String, what string) ([]pkix.Extension, error) {
	if !s.PeekASN1Tag(cryptobyte_asn1.SEQUENCE) {
		return nil, nil
	}
	der, err := readElement(s, cryptobyte_asn1.SEQUENCE, what)
	if err != nil {
		return nil, err
	}
	exts, err := unmarshalCanonical[[]pkix.Extension](der)
	if err != nil {
		return nil, wrapError(CodeMalformedEncoding, "parsing "+what, err)
	}
	if exts == nil {
		exts = []pkix.Extension{}
	}
	return exts, nil
}

// unmarshalCanonical decodes der with encoding/asn1 and rejects any input that
// does not re-encode to the same bytes, so that values decoded through the
// standard library keep the one-encoding-per-value property.
func unmarshalCanonical[T any](der []byte) (T, error) {
	var out T
	rest, err := asn1.Unmarshal(der, &out)
	if err != nil {
		return out, err
	}
	if len(rest) > 0 {
		return out, errors.New("trailing data")
	}
	again, err := asn1.Marshal(out)
	if err != nil {
		return out, err
	}
	if !bytes.Equal(again, der) {
		return out, errors.New("non-canonical DER encoding")
	}
	return out, nil
}

// isElement reports whether der holds exactly one element with the given tag.
func isElement(der []byte, tag cryptobyte_asn1.Tag) bool {
	s := cryptobyte.String(der)
	var el cryptobyte.String
	return s.ReadASN1(&el, tag) && s.Empty()
}

// isAnyElement reports whether der holds exactly one element of any tag.
func isAnyElement(der []byte) bool {
	s := cryptobyte.String(der)
	var el cryptobyte.String
	var tag cryptobyte_asn1.Tag
	return s.ReadAnyASN1Element(&el, &tag) && s.Empty()
}

// validBitString reports whether bs is a consistent DER BIT STRING: the byte
// count matches the bit length and the unused trailing bits are zero.
func validBitString(bs asn1.BitString) bool {
	if bs.BitLength < 0 || len(bs.Bytes) != (bs.BitLength+7)/8 {
		return false
	}
	pad := len(bs.Bytes)*8 - bs.BitLength
	if pad == 0 {
		return true
	}
	return bs.Bytes[len(bs.Bytes)-1]&(1<<pad-1) == 0
}

func addExplicit(b *cryptobyte.Builder, n int, f cryptobyte.BuilderContinuation) {
	b.AddASN1(explicitTag(n), f)
}

func addSequence(b *cryptobyte.Builder, f cryptobyte.BuilderContinuation) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, f)
}

func addUTF8String(b *cryptobyte.Builder, s string) {
	b.AddASN1(cryptobyte_asn1.UTF8String, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}

func addBitString(b *cryptobyte.Builder, bs asn1.BitString) {
	b.AddASN1(cryptobyte_asn1.BIT_STRING, func(b *cryptobyte.Builder) {
		b.AddUint8(uint8(len(bs.Bytes)*8 - bs.BitLength))
		b.AddBytes(bs.Bytes)
	})
}

func addGeneralizedTime(b *cryptobyte.Builder, t time.Time) {
	b.AddASN1GeneralizedTime(t.UTC())
}

// addMarshaled appends the encoding/asn1 DER of v.
func addMarshaled(b *cryptobyte.Builder, v any, what string) {
	der, err := asn1.Marshal(v)
	if err != nil {
		b.SetError(wrapError(CodeMalformedEncoding, "marshaling "+what, err))
		return
	}
	b.AddBytes(der)
}

// addRaw appends a caller-supplied DER element after checking that it is a
// single element with the given tag.
func addRaw(b *cryptobyte.Builder, der []byte, tag cryptobyte_asn1.Tag, what string) {
	if !isElement(der, tag) {
		b.SetError(malformed(what))
		return
	}
	b.AddBytes(der)
}

// addSigned appends the Raw DER of a parsed certificate, CSR or CRL.
func addSigned(b *cryptobyte.Builder, der []byte, what string) {
	if err := checkSigned(der, what); err != nil {
		b.SetError(err)
		return
	}
	b.AddBytes(der)
}

func addCertificate(b *cryptobyte.Builder, c *x509.Certificate, what string) {
	if c == nil {
		b.SetError(newError(CodeInvalidArgument, what+" is nil"))
		return
	}
	addSigned(b, c.Raw, what)
}

func addCertificates(b *cryptobyte.Builder, certs []*x509.Certificate) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, c := range certs {
			addCertificate(b, c, "certificate")
		}
	})
}

func addCRLs(b *cryptobyte.Builder, crls []*x509.RevocationList) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, c := range crls {
			if c == nil {
				b.SetError(newError(CodeInvalidArgument, "CRL is nil"))
				return
			}
			addSigned(b, c.Raw, "CRL")
		}
	})
}
