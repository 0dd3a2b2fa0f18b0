package cmp

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

// --- Test PKI helpers ---

type testPKI struct {
	ca    *x509.Certificate
	caKey *ecdsa.PrivateKey
	ee    *x509.Certificate
	csr   *x509.CertificateRequest
	crl   *x509.RevocationList
}

// newTestPKI generates a CA, an end-entity certificate issued by it, a CSR and
// an empty CRL, all with ECDSA P-256 keys.
func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	ca := createCert(t, caTmpl, caTmpl, caKey.Public(), caKey)

	eeKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	eeTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test-ee"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	ee := createCert(t, eeTmpl, ca, eeKey.Public(), caKey)

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: "test-ee"},
	}, eeKey)
	require.NoError(t, err)
	csr, err := x509.ParseCertificateRequest(csrDER)
	require.NoError(t, err)

	crlDER, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now().Add(-time.Hour),
		NextUpdate: time.Now().Add(24 * time.Hour),
	}, ca, caKey)
	require.NoError(t, err)
	crl, err := x509.ParseRevocationList(crlDER)
	require.NoError(t, err)

	return &testPKI{ca: ca, caKey: caKey, ee: ee, csr: csr, crl: crl}
}

func createCert(t *testing.T, tmpl, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// --- Message helpers ---

var testTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func mustDirectoryName(t *testing.T, cn string) GeneralName {
	t.Helper()
	g, err := DirectoryName(pkix.Name{CommonName: cn})
	require.NoError(t, err)
	return g
}

// testHeader returns a cmp2000 header that satisfies every built-in policy
// apart from protection.
func testHeader(t *testing.T) Header {
	t.Helper()
	return Header{
		PVNO:          Version2000,
		Sender:        mustDirectoryName(t, "test-ee"),
		Recipient:     mustDirectoryName(t, "test-ca"),
		MessageTime:   &testTime,
		TransactionID: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SenderNonce:   []byte{0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xab, 0xac, 0xad, 0xae, 0xaf},
	}
}

func mustConfirmWaitTime(t *testing.T, at time.Time) InfoTypeAndValue {
	t.Helper()
	itv, err := ConfirmWaitTime(at)
	require.NoError(t, err)
	return itv
}

func testMessage(t *testing.T, body Body) *Message {
	t.Helper()
	return &Message{Header: testHeader(t), Body: body}
}

// testProtection returns a protectionAlg and matching protection bits.
func testProtection() (*pkix.AlgorithmIdentifier, *asn1.BitString) {
	alg := &pkix.AlgorithmIdentifier{Algorithm: pkiasn1.OIDECDSAWithSHA256}
	bits := &asn1.BitString{Bytes: []byte{0xde, 0xad, 0xbe, 0xef}, BitLength: 32}
	return alg, bits
}

// testCertTemplate returns a CertTemplate SEQUENCE holding only subject [5].
func testCertTemplate(t *testing.T, cn string) []byte {
	t.Helper()
	name, err := asn1.Marshal(pkix.Name{CommonName: cn}.ToRDNSequence())
	require.NoError(t, err)
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(explicitTag(5), func(b *cryptobyte.Builder) {
			b.AddBytes(name)
		})
	})
	return b.BytesOrPanic()
}

func utf8Element(s string) []byte {
	b := cryptobyte.NewBuilder(nil)
	addUTF8String(b, s)
	return b.BytesOrPanic()
}

// sampleBodies returns one well-formed body of every type, keyed by type.
func sampleBodies(t *testing.T, pki *testPKI) map[BodyType]Body {
	t.Helper()
	reqs := CertReqMessages{{
		CertReqID:    0,
		CertTemplate: testCertTemplate(t, "test-ee"),
		Controls:     []AttributeTypeAndValue{{Type: pkiasn1.OIDRegCtrlRegToken, Value: utf8Element("token")}},
		POPO:         []byte{0x80, 0x00},
		RegInfo:      []AttributeTypeAndValue{{Type: pkiasn1.OIDRegInfoUTF8Pairs, Value: utf8Element("a?b%")}},
	}}
	rep := CertRepMessage{
		CAPubs: []*x509.Certificate{pki.ca},
		Response: []CertResponse{{
			CertReqID:        0,
			Status:           StatusInfo{Status: StatusAccepted},
			CertifiedKeyPair: &CertifiedKeyPair{Certificate: pki.ee},
		}},
	}
	fail := FailBadRequest | FailBadCertTemplate
	certID := CertID{Issuer: mustDirectoryName(t, "test-ca"), SerialNumber: big.NewInt(2)}
	errCode := int64(1234)

	inner := testMessage(t, PKIConf{})
	return map[BodyType]Body{
		BodyIR:    IR(reqs),
		BodyIP:    IP(rep),
		BodyCR:    CR(reqs),
		BodyCP:    CP(rep),
		BodyP10CR: P10CR{CSR: pki.csr},
		BodyPOPDecC: POPDecC{{
			OWF:       &pkix.AlgorithmIdentifier{Algorithm: pkiasn1.OIDSHA256},
			Witness:   []byte{0x01, 0x02},
			Challenge: []byte{0x03, 0x04},
		}},
		BodyPOPDecR: POPDecR{big.NewInt(42)},
		BodyKUR:     KUR(reqs),
		BodyKUP:     KUP(rep),
		BodyKRR:     KRR(reqs),
		BodyKRP: KRP{
			Status:      StatusInfo{Status: StatusAccepted},
			NewSigCert:  pki.ee,
			CACerts:     []*x509.Certificate{pki.ca},
			KeyPairHist: []CertifiedKeyPair{{Certificate: pki.ee}},
		},
		BodyRR: RR{{CertDetails: testCertTemplate(t, "test-ee")}},
		BodyRP: RP{
			Status:   []StatusInfo{{Status: StatusRejection, FailInfo: &fail}},
			RevCerts: []CertID{certID},
			CRLs:     []*x509.RevocationList{pki.crl},
		},
		BodyCCR:    CCR(reqs),
		BodyCCP:    CCP(rep),
		BodyCKUAnn: CKUAnn{OldWithNew: pki.ca, NewWithOld: pki.ca, NewWithNew: pki.ca},
		BodyCAnn:   CAnn{Certificate: pki.ca},
		BodyRAnn: RAnn{
			Status:          StatusRevocationWarning,
			CertID:          certID,
			WillBeRevokedAt: testTime.Add(time.Hour),
			BadSinceDate:    testTime,
		},
		BodyCRLAnn:  CRLAnn{pki.crl},
		BodyPKIConf: PKIConf{},
		BodyNested:  Nested{inner},
		BodyGenM:    GenM{{Type: pkiasn1.OIDCACerts}},
		BodyGenP:    GenP{mustConfirmWaitTime(t, testTime)},
		BodyError: ErrorMsg{
			Status:       StatusInfo{Status: StatusRejection, StatusString: FreeText{"bad request"}},
			ErrorCode:    &errCode,
			ErrorDetails: FreeText{"no such profile"},
		},
		BodyCertConf: CertConf{{CertHash: []byte{0xca, 0xfe}, CertReqID: 0}},
		BodyPollReq:  PollReq{{CertReqID: 0}},
		BodyPollRep:  PollRep{{CertReqID: 0, CheckAfter: 60, Reason: FreeText{"queued"}}},
	}
}

// encodeRaw encodes m without validating it, for tests that need invalid
// messages on the wire.
func encodeRaw(t *testing.T, m *Message) []byte {
	t.Helper()
	b := cryptobyte.NewBuilder(nil)
	addMessage(b, m)
	der, err := b.Bytes()
	require.NoError(t, err)
	return der
}

// encodeWithBody encodes a message whose body element is tag wrapping payload.
func encodeWithBody(t *testing.T, h Header, tag cryptobyte_asn1.Tag, payload []byte) []byte {
	t.Helper()
	b := cryptobyte.NewBuilder(nil)
	addSequence(b, func(b *cryptobyte.Builder) {
		addHeader(b, &h)
		b.AddASN1(tag, func(b *cryptobyte.Builder) {
			b.AddBytes(payload)
		})
	})
	der, err := b.Bytes()
	require.NoError(t, err)
	return der
}

// requireCode asserts that err is an *Error with the given code.
func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := CodeOf(err)
	require.True(t, ok, "error %v is not a *cmp.Error", err)
	require.Equal(t, code, got, "error: %v", err)
}

var (
	certPtrType = reflect.TypeOf((*x509.Certificate)(nil))
	csrPtrType  = reflect.TypeOf((*x509.CertificateRequest)(nil))
	crlPtrType  = reflect.TypeOf((*x509.RevocationList)(nil))
	bigPtrType  = reflect.TypeOf((*big.Int)(nil))
	timeType    = reflect.TypeOf(time.Time{})
)

// requireSameModel fails unless got holds the same values as want.
// Certificates, CSRs and CRLs compare by Raw, integers by value and times by
// instant. Nil and empty slices compare equal.
func requireSameModel(t *testing.T, want, got any) {
	t.Helper()
	if path := modelDiff("", reflect.ValueOf(want), reflect.ValueOf(got)); path != "" {
		t.Fatalf("values differ at %q", path)
	}
}

func modelDiff(path string, want, got reflect.Value) string {
	if want.IsValid() != got.IsValid() {
		return path
	}
	if !want.IsValid() {
		return ""
	}
	if want.Type() != got.Type() {
		return path + " (type " + want.Type().String() + " vs " + got.Type().String() + ")"
	}

	switch want.Type() {
	case certPtrType, csrPtrType, crlPtrType:
		if want.IsNil() || got.IsNil() {
			return diffIf(want.IsNil() != got.IsNil(), path)
		}
		return diffIf(!bytes.Equal(want.Elem().FieldByName("Raw").Bytes(), got.Elem().FieldByName("Raw").Bytes()), path)
	case bigPtrType:
		if want.IsNil() || got.IsNil() {
			return diffIf(want.IsNil() != got.IsNil(), path)
		}
		return diffIf(want.Interface().(*big.Int).Cmp(got.Interface().(*big.Int)) != 0, path)
	case timeType:
		return diffIf(!want.Interface().(time.Time).Equal(got.Interface().(time.Time)), path)
	}

	switch want.Kind() {
	case reflect.Pointer, reflect.Interface:
		if want.IsNil() || got.IsNil() {
			return diffIf(want.IsNil() != got.IsNil(), path)
		}
		return modelDiff(path, want.Elem(), got.Elem())
	case reflect.Struct:
		for i := 0; i < want.NumField(); i++ {
			if d := modelDiff(path+"."+want.Type().Field(i).Name, want.Field(i), got.Field(i)); d != "" {
				return d
			}
		}
	case reflect.Slice, reflect.Array:
		if want.Len() != got.Len() {
			return path + " (length)"
		}
		for i := 0; i < want.Len(); i++ {
			if d := modelDiff(path+"["+strconv.Itoa(i)+"]", want.Index(i), got.Index(i)); d != "" {
				return d
			}
		}
	case reflect.String:
		return diffIf(want.String() != got.String(), path)
	case reflect.Bool:
		return diffIf(want.Bool() != got.Bool(), path)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return diffIf(want.Int() != got.Int(), path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return diffIf(want.Uint() != got.Uint(), path)
	default:
		return path + " (unsupported kind " + want.Kind().String() + ")"
	}
	return ""
}

func diffIf(differ bool, path string) string {
	if differ {
		return path
	}
	return ""
}
