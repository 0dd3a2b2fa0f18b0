package cmp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"

	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

func TestValidate_ProtectionRules(t *testing.T) {
	alg, bits := testProtection()
	tests := []struct {
		name  string
		setup func(m *Message)
		code  ErrorCode
	}{
		{"protection without protectionAlg", func(m *Message) { m.Protection = bits }, CodeMissingProtectionAlgorithm},
		{"protectionAlg without protection", func(m *Message) { m.Header.ProtectionAlg = alg }, CodeMissingProtection},
		{"bad protectionAlg OID", func(m *Message) {
			m.Header.ProtectionAlg = &pkix.AlgorithmIdentifier{Algorithm: []int{7}}
			m.Protection = bits
		}, CodeMalformedEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMessage(t, PKIConf{})
			tt.setup(m)
			requireCode(t, Validate(m), tt.code)
		})
	}
}

func TestValidate_DefaultPolicy(t *testing.T) {
	pki := newTestPKI(t)
	for bt, body := range sampleBodies(t, pki) {
		t.Run(bt.String(), func(t *testing.T) {
			m := testMessage(t, body)
			m.Header.TransactionID = nil
			err := Validate(m)
			if bt.IsAnnouncement() {
				require.NoError(t, err)
				return
			}
			requireCode(t, err, CodeMissingTransactionID)
			assert.ErrorIs(t, err, ErrMissingTransactionID)
		})
	}
}

func TestValidate_LightweightPolicy(t *testing.T) {
	lw := WithPolicy(LightweightPolicy())
	alg, bits := testProtection()

	m := testMessage(t, PKIConf{})
	requireCode(t, Validate(m, lw), CodeMissingProtection)

	m.Header.ProtectionAlg, m.Protection = alg, bits
	require.NoError(t, Validate(m, lw))

	m.Header.SenderNonce = nil
	requireCode(t, Validate(m, lw), CodeMissingSenderNonce)

	// An error message may be sent unprotected.
	e := testMessage(t, ErrorMsg{Status: StatusInfo{Status: StatusRejection}})
	require.NoError(t, Validate(e, lw))

	// Announcements are outside any transaction.
	pki := newTestPKI(t)
	a := &Message{
		Header: Header{PVNO: Version2000, Sender: NullDN(), Recipient: NullDN()},
		Body:   CAnn{Certificate: pki.ca},
	}
	require.NoError(t, Validate(a, lw))
}

func TestValidate_ForbiddenProtection(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.SetRule(BodyPKIConf, BodyRule{TransactionID: true, Protection: Forbidden}))

	m := testMessage(t, PKIConf{})
	m.Header.ProtectionAlg, m.Protection = testProtection()
	err := Validate(m, WithPolicy(p))
	requireCode(t, err, CodeUnexpectedProtection)
	assert.True(t, IsValidationError(err))

	// Other body types keep the default rule.
	g := testMessage(t, GenM{})
	g.Header.ProtectionAlg, g.Protection = testProtection()
	require.NoError(t, Validate(g, WithPolicy(p)))
}

func TestValidate_NoPolicy(t *testing.T) {
	p, err := PolicyByName("none")
	require.NoError(t, err)
	m := testMessage(t, PKIConf{})
	m.Header.TransactionID = nil
	require.NoError(t, Validate(m, WithPolicy(p)))
}

func TestValidate_EmptyOptionalSequences(t *testing.T) {
	pki := newTestPKI(t)
	template := testCertTemplate(t, "test-ee")
	tests := []struct {
		name string
		body Body
	}{
		{"caPubs", IP{CAPubs: []*x509.Certificate{}, Response: []CertResponse{}}},
		{"statusString", CP{Response: []CertResponse{{Status: StatusInfo{StatusString: FreeText{}}}}}},
		{"controls", IR{{CertTemplate: template, Controls: []AttributeTypeAndValue{}}}},
		{"regInfo", CR{{CertTemplate: template, RegInfo: []AttributeTypeAndValue{}}}},
		{"caCerts", KRP{CACerts: []*x509.Certificate{}}},
		{"keyPairHist", KRP{KeyPairHist: []CertifiedKeyPair{}}},
		{"crlEntryDetails", RR{{CertDetails: template, CRLEntryDetails: []pkix.Extension{}}}},
		{"revCerts", RP{Status: []StatusInfo{{}}, RevCerts: []CertID{}}},
		{"crls", RP{Status: []StatusInfo{{}}, CRLs: []*x509.RevocationList{}}},
		{"crlDetails", RAnn{CertID: CertID{Issuer: NullDN(), SerialNumber: big.NewInt(1)}, CRLDetails: []pkix.Extension{}}},
		{"errorDetails", ErrorMsg{ErrorDetails: FreeText{}}},
		{"poll reason", PollRep{{Reason: FreeText{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, Validate(testMessage(t, tt.body)), CodeEmptyOptionalSequence)
		})
	}

	m := testMessage(t, PKIConf{})
	m.ExtraCerts = []*x509.Certificate{}
	requireCode(t, Validate(m), CodeEmptyOptionalSequence)

	// Absent is fine.
	m.ExtraCerts = nil
	require.NoError(t, Validate(m))
	require.NoError(t, Validate(testMessage(t, IP{Response: []CertResponse{}})))
	require.NoError(t, Validate(testMessage(t, CAnn{Certificate: pki.ca})))
}

func TestValidate_StructuralSanity(t *testing.T) {
	pki := newTestPKI(t)
	tests := []struct {
		name string
		msg  func() *Message
		code ErrorCode
	}{
		{"nil message", func() *Message { return nil }, CodeInvalidArgument},
		{"nil body", func() *Message { return testMessage(t, nil) }, CodeInvalidArgument},
		{"nil extraCert", func() *Message {
			m := testMessage(t, PKIConf{})
			m.ExtraCerts = []*x509.Certificate{nil}
			return m
		}, CodeInvalidArgument},
		{"nil CSR", func() *Message { return testMessage(t, P10CR{}) }, CodeInvalidArgument},
		{"nil cann certificate", func() *Message { return testMessage(t, CAnn{}) }, CodeInvalidArgument},
		{"ckuann missing oldWithNew", func() *Message {
			return testMessage(t, CKUAnn{NewWithOld: pki.ca, NewWithNew: pki.ca})
		}, CodeInvalidArgument},
		{"nil popdecr integer", func() *Message { return testMessage(t, POPDecR{nil}) }, CodeInvalidArgument},
		{"nil CRL", func() *Message { return testMessage(t, CRLAnn{nil}) }, CodeInvalidArgument},
		{"unset certId issuer", func() *Message {
			return testMessage(t, RP{Status: []StatusInfo{{}}, RevCerts: []CertID{{SerialNumber: big.NewInt(1)}}})
		}, CodeMalformedName},
		{"nil certId serial", func() *Message {
			return testMessage(t, RP{Status: []StatusInfo{{}}, RevCerts: []CertID{{Issuer: NullDN()}}})
		}, CodeInvalidArgument},
		{"both certificate and encryptedCert", func() *Message {
			ckp := &CertifiedKeyPair{Certificate: pki.ee, EncryptedCert: []byte{0x30, 0x00}}
			return testMessage(t, IP{Response: []CertResponse{{CertifiedKeyPair: ckp}}})
		}, CodeInvalidArgument},
		{"bad certTemplate", func() *Message {
			return testMessage(t, IR{{CertTemplate: []byte{0x30, 0x02, 0x05, 0x00}}})
		}, CodeMalformedEncoding},
		{"bad popo", func() *Message {
			return testMessage(t, IR{{CertTemplate: []byte{0x30, 0x00}, POPO: []byte{0x80, 0x01, 0x00}}})
		}, CodeMalformedEncoding},
		{"empty nested", func() *Message { return testMessage(t, Nested{}) }, CodeEmptyNestedMessage},
		{"nil nested message", func() *Message { return testMessage(t, Nested{nil}) }, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.msg()
			requireCode(t, Validate(m), tt.code)
			_, err := m.Marshal()
			requireCode(t, err, tt.code)
		})
	}
}

func TestMarshal_SignedObjectsNeedDER(t *testing.T) {
	pki := newTestPKI(t)
	bare := &x509.Certificate{}
	junk := &x509.Certificate{Raw: []byte{0x01, 0x02}}
	trailing := &x509.Certificate{Raw: append(append([]byte{}, pki.ee.Raw...), 0x00)}
	tests := []struct {
		name string
		body Body
	}{
		{"cann bare certificate", CAnn{Certificate: bare}},
		{"cann junk raw", CAnn{Certificate: junk}},
		{"ckuann oldWithNew", CKUAnn{OldWithNew: bare, NewWithOld: pki.ca, NewWithNew: pki.ca}},
		{"ckuann newWithOld", CKUAnn{OldWithNew: pki.ca, NewWithOld: bare, NewWithNew: pki.ca}},
		{"ckuann newWithNew", CKUAnn{OldWithNew: pki.ca, NewWithOld: pki.ca, NewWithNew: bare}},
		{"ckuann root update", CKUAnn{NewWithNew: junk, RootCAKeyUpdate: true}},
		{"krp newSigCert", KRP{NewSigCert: bare}},
		{"krp keyPairHist", KRP{KeyPairHist: []CertifiedKeyPair{{Certificate: trailing}}}},
		{"p10cr bare CSR", P10CR{CSR: &x509.CertificateRequest{}}},
		{"crlann bare CRL", CRLAnn{&x509.RevocationList{}}},
		{"rp bare CRL", RP{Status: []StatusInfo{{}}, CRLs: []*x509.RevocationList{{}}}},
		{"ip caPubs", IP{CAPubs: []*x509.Certificate{junk}}},
		{"ip certifiedKeyPair", IP{Response: []CertResponse{{CertifiedKeyPair: &CertifiedKeyPair{Certificate: trailing}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMessage(t, tt.body)
			requireCode(t, Validate(m), CodeMalformedCertificate)
			_, err := m.Marshal()
			requireCode(t, err, CodeMalformedCertificate)
		})
	}

	// The encoder refuses the same values when called without validation.
	b := cryptobyte.NewBuilder(nil)
	CAnn{Certificate: bare}.marshal(b)
	_, err := b.Bytes()
	requireCode(t, err, CodeMalformedCertificate)
}

func TestMarshal_TimesMustBeWholeSeconds(t *testing.T) {
	pki := newTestPKI(t)
	fractional := time.Date(2026, 1, 2, 3, 4, 5, 500, time.UTC)
	farFuture := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	rann := sampleBodies(t, pki)[BodyRAnn].(RAnn)

	tests := []struct {
		name string
		msg  func() *Message
	}{
		{"messageTime fraction", func() *Message {
			m := testMessage(t, PKIConf{})
			m.Header.MessageTime = &fractional
			return m
		}},
		{"messageTime year", func() *Message {
			m := testMessage(t, PKIConf{})
			m.Header.MessageTime = &farFuture
			return m
		}},
		{"rann willBeRevokedAt", func() *Message {
			r := rann
			r.WillBeRevokedAt = fractional
			return testMessage(t, r)
		}},
		{"rann badSinceDate", func() *Message {
			r := rann
			r.BadSinceDate = fractional
			return testMessage(t, r)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.msg()
			requireCode(t, Validate(m), CodeInvalidArgument)
			_, err := m.Marshal()
			requireCode(t, err, CodeInvalidArgument)
		})
	}

	// A whole-second time in another zone decodes to the same instant.
	local := time.Date(2026, 1, 2, 4, 4, 5, 0, time.FixedZone("CET", 3600))
	m := testMessage(t, PKIConf{})
	m.Header.MessageTime = &local
	der, err := m.Marshal()
	require.NoError(t, err)
	got, err := DecodeMessage(der)
	require.NoError(t, err)
	require.NotNil(t, got.Header.MessageTime)
	assert.True(t, local.Equal(*got.Header.MessageTime))
}

func TestValidate_POPDecCFirstChallengeNeedsOWF(t *testing.T) {
	owf := &pkix.AlgorithmIdentifier{Algorithm: pkiasn1.OIDSHA256}
	ok := POPDecC{
		{OWF: owf, Witness: []byte{0x01}, Challenge: []byte{0x02}},
		{Witness: []byte{0x03}, Challenge: []byte{0x04}},
	}
	require.NoError(t, Validate(testMessage(t, ok)))

	bad := POPDecC{{Witness: []byte{0x01}, Challenge: []byte{0x02}}}
	m := testMessage(t, bad)
	requireCode(t, Validate(m), CodeInvalidArgument)

	// On the wire the same shape is malformed.
	_, err := DecodeMessage(encodeRaw(t, m))
	requireCode(t, err, CodeMalformedEncoding)
}

func TestValidate_NestedInnerRules(t *testing.T) {
	inner := testMessage(t, PKIConf{})
	inner.Header.TransactionID = nil
	err := Validate(testMessage(t, Nested{inner}))
	requireCode(t, err, CodeMissingTransactionID)
	assert.Contains(t, err.Error(), "message 0")
}

func TestValidate_ConfigErrors(t *testing.T) {
	err := Validate(testMessage(t, PKIConf{}), WithPolicy(nil), WithMaxNestingDepth(-1), WithMaxMessageSize(0), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 4)
}
