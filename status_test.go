package cmp

import (
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
)

func TestFailureInfo_BitString(t *testing.T) {
	tests := []struct {
		name string
		f    FailureInfo
		want asn1.BitString
	}{
		{"none", 0, asn1.BitString{Bytes: []byte{}, BitLength: 0}},
		{"badAlg", FailBadAlg, asn1.BitString{Bytes: []byte{0x80}, BitLength: 1}},
		{"badRequest", FailBadRequest, asn1.BitString{Bytes: []byte{0x20}, BitLength: 3}},
		{"badPOP|certRevoked", FailBadPOP | FailCertRevoked, asn1.BitString{Bytes: []byte{0x00, 0x60}, BitLength: 11}},
		{"duplicateCertReq", FailDuplicateCertReq, asn1.BitString{Bytes: []byte{0x00, 0x00, 0x00, 0x20}, BitLength: 27}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.f.bitString()
			assert.Equal(t, tt.want, got)
			assert.True(t, validBitString(got))

			back, ok := failureInfoFromBitString(got)
			require.True(t, ok)
			assert.Equal(t, tt.f, back)
		})
	}
}

func TestFailureInfo_RejectsNonMinimal(t *testing.T) {
	// badAlg followed by a zero bit.
	_, ok := failureInfoFromBitString(asn1.BitString{Bytes: []byte{0x80}, BitLength: 2})
	assert.False(t, ok)

	_, ok = failureInfoFromBitString(asn1.BitString{Bytes: make([]byte, 5), BitLength: 33})
	assert.False(t, ok)
}

func TestFailureInfo_String(t *testing.T) {
	assert.Equal(t, "none", FailureInfo(0).String())
	assert.Equal(t, "badAlg|badPOP", (FailBadAlg | FailBadPOP).String())
	assert.Equal(t, "systemFailure|bit31", (FailSystemFailure | 1<<31).String())
	assert.True(t, (FailBadAlg | FailBadTime).Has(FailBadTime))
	assert.False(t, FailBadAlg.Has(FailBadAlg|FailBadTime))
}

func TestPKIStatus_String(t *testing.T) {
	assert.Equal(t, "accepted", StatusAccepted.String())
	assert.Equal(t, "keyUpdateWarning", StatusKeyUpdateWarning.String())
	assert.Equal(t, "PKIStatus(7)", PKIStatus(7).String())
}

func TestStatusInfo_RoundTrip(t *testing.T) {
	fail := FailBadMessageCheck | FailSignerNotTrusted
	tests := []struct {
		name string
		si   StatusInfo
	}{
		{"status only", StatusInfo{Status: StatusWaiting}},
		{"with text", StatusInfo{Status: StatusRejection, StatusString: FreeText{"denied"}}},
		{"with failInfo", StatusInfo{Status: StatusRejection, FailInfo: &fail}},
		{"all fields", StatusInfo{Status: StatusRejection, StatusString: FreeText{"a", "b"}, FailInfo: &fail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := cryptobyte.NewBuilder(nil)
			addStatusInfo(b, tt.si)
			der, err := b.Bytes()
			require.NoError(t, err)

			s := cryptobyte.String(der)
			got, err := readStatusInfo(&s)
			require.NoError(t, err)
			assert.True(t, s.Empty())
			assert.Equal(t, tt.si, got)
		})
	}
}

func TestStatusInfo_String(t *testing.T) {
	fail := FailBadRequest
	si := StatusInfo{Status: StatusRejection, StatusString: FreeText{"bad", "request"}, FailInfo: &fail}
	assert.Equal(t, "rejection (badRequest): bad; request", si.String())
	assert.Equal(t, "accepted", StatusInfo{}.String())
}

func TestStatusInfo_EmptyStatusStringRejected(t *testing.T) {
	m := testMessage(t, ErrorMsg{Status: StatusInfo{Status: StatusRejection, StatusString: FreeText{}}})
	_, err := m.Marshal()
	requireCode(t, err, CodeEmptyOptionalSequence)
}
