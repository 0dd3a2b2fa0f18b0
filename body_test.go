package cmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

func TestBodyType_Names(t *testing.T) {
	for bt := BodyType(0); bt < numBodyTypes; bt++ {
		got, err := ParseBodyType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, got)
	}

	got, err := ParseBodyType("CERTCONF")
	require.NoError(t, err)
	assert.Equal(t, BodyCertConf, got)

	_, err = ParseBodyType("certReq")
	requireCode(t, err, CodeInvalidArgument)

	assert.Equal(t, "BodyType(27)", BodyType(27).String())
	assert.False(t, BodyType(-1).Valid())
}

func TestBodyType_IsAnnouncement(t *testing.T) {
	var got []BodyType
	for bt := BodyType(0); bt < numBodyTypes; bt++ {
		if bt.IsAnnouncement() {
			got = append(got, bt)
		}
	}
	assert.Equal(t, []BodyType{BodyCKUAnn, BodyCAnn, BodyRAnn, BodyCRLAnn}, got)
}

func TestBody_AllTagsDecodeToTheirType(t *testing.T) {
	pki := newTestPKI(t)
	bodies := sampleBodies(t, pki)
	require.Len(t, bodies, numBodyTypes)

	for bt, body := range bodies {
		t.Run(bt.String(), func(t *testing.T) {
			assert.Equal(t, bt, body.Type())
			der, err := testMessage(t, body).Marshal()
			require.NoError(t, err)

			m, err := DecodeMessage(der)
			require.NoError(t, err)
			assert.Equal(t, bt, m.Body.Type())
			assert.IsType(t, body, m.Body)
		})
	}
}

func TestBody_ForeignPayloadRejected(t *testing.T) {
	foreign := map[string][]byte{
		"INTEGER":      {0x02, 0x01, 0x05},
		"OCTET STRING": {0x04, 0x02, 0xde, 0xad},
		"empty":        {},
	}
	for bt := BodyType(0); bt < numBodyTypes; bt++ {
		for name, payload := range foreign {
			t.Run(bt.String()+"/"+name, func(t *testing.T) {
				der := encodeWithBody(t, testHeader(t), explicitTag(int(bt)), payload)
				_, err := DecodeMessage(der)
				requireCode(t, err, CodeMalformedEncoding)
			})
		}
	}
}

func TestBody_PayloadOfAnotherType(t *testing.T) {
	// A pkiconf payload is NULL, which no SEQUENCE-based body accepts.
	der := encodeWithBody(t, testHeader(t), explicitTag(int(BodyIR)), []byte{0x05, 0x00})
	_, err := DecodeMessage(der)
	requireCode(t, err, CodeMalformedEncoding)

	// An ir payload is a SEQUENCE, which pkiconf does not accept.
	der = encodeWithBody(t, testHeader(t), explicitTag(int(BodyPKIConf)), []byte{0x30, 0x00})
	_, err = DecodeMessage(der)
	requireCode(t, err, CodeMalformedEncoding)
}

func TestBody_UnknownTag(t *testing.T) {
	for _, tag := range []int{27, 28, 30} {
		der := encodeWithBody(t, testHeader(t), explicitTag(tag), []byte{0x05, 0x00})
		_, err := DecodeMessage(der)
		requireCode(t, err, CodeUnknownBodyType)
		assert.ErrorIs(t, err, ErrUnknownBodyType)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, tag, e.Tag)
	}
}

func TestBody_HighTagNumber(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		code  ErrorCode
		tagNo int
	}{
		{"tag 31", []byte{0xbf, 0x1f, 0x02, 0x05, 0x00}, CodeUnknownBodyType, 31},
		{"tag 128", []byte{0xbf, 0x81, 0x00, 0x02, 0x05, 0x00}, CodeUnknownBodyType, 128},
		{"non-minimal tag", []byte{0xbf, 0x80, 0x1f, 0x02, 0x05, 0x00}, CodeMalformedEncoding, 0},
		{"primitive high tag", []byte{0x9f, 0x1f, 0x02, 0x05, 0x00}, CodeMalformedEncoding, 0},
		{"unterminated tag", []byte{0xbf, 0x81}, CodeMalformedEncoding, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHeader(t)
			b := cryptobyte.NewBuilder(nil)
			addSequence(b, func(b *cryptobyte.Builder) {
				addHeader(b, &h)
				b.AddBytes(tt.body)
			})
			der, err := b.Bytes()
			require.NoError(t, err)

			_, err = DecodeMessage(der)
			requireCode(t, err, tt.code)
			if tt.code == CodeUnknownBodyType {
				var e *Error
				require.ErrorAs(t, err, &e)
				assert.Equal(t, tt.tagNo, e.Tag)
			}
		})
	}
}

func TestBody_BadTagClass(t *testing.T) {
	tests := []struct {
		name string
		tag  cryptobyte_asn1.Tag
	}{
		{"primitive context tag", cryptobyte_asn1.Tag(19).ContextSpecific()},
		{"universal SEQUENCE", cryptobyte_asn1.SEQUENCE},
		{"application tag", cryptobyte_asn1.Tag(0x60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			der := encodeWithBody(t, testHeader(t), tt.tag, []byte{0x05, 0x00})
			_, err := DecodeMessage(der)
			requireCode(t, err, CodeMalformedEncoding)
		})
	}
}

func TestBody_TrailingDataInsidePayload(t *testing.T) {
	der := encodeWithBody(t, testHeader(t), explicitTag(int(BodyPKIConf)), []byte{0x05, 0x00, 0x05, 0x00})
	_, err := DecodeMessage(der)
	requireCode(t, err, CodeTrailingData)
}

func TestBody_EmptyListsAreValid(t *testing.T) {
	// certConf with no entries means every certificate was rejected.
	for _, body := range []Body{CertConf{}, IR{}, PollReq{}} {
		der, err := testMessage(t, body).Marshal()
		require.NoError(t, err)
		m, err := DecodeMessage(der)
		require.NoError(t, err)
		assert.Equal(t, body.Type(), m.Type())
	}
}

func TestBody_UnsupportedImplementation(t *testing.T) {
	// Pointer receivers satisfy Body through the method set but are not one
	// of the alternatives the validator knows.
	_, err := testMessage(t, &PKIConf{}).Marshal()
	requireCode(t, err, CodeInvalidArgument)
}
