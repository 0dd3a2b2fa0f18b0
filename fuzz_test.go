package cmp

import (
	"bytes"
	"testing"
)

var fuzzDecodeMessageSink *Message

// FuzzDecodeMessage verifies that DecodeMessage never panics and that every
// accepted input re-encodes to exactly the same bytes. The corpus is seeded
// with a minimal pkiconf and a few hand-assembled variants.
func FuzzDecodeMessage(f *testing.F) {
	f.Add(minimalPKIConf)
	f.Add([]byte{
		0x30, 0x1d,
		0x30, 0x13,
		0x02, 0x01, 0x02,
		0xa4, 0x02, 0x30, 0x00,
		0xa4, 0x02, 0x30, 0x00,
		0xa4, 0x06, 0x04, 0x04, 0x01, 0x02, 0x03, 0x04,
		0xb7, 0x06, 0x30, 0x04, 0x30, 0x02, 0x02, 0x00, // error, status truncated
	})
	f.Add([]byte{
		0x30, 0x1b,
		0x30, 0x13,
		0x02, 0x01, 0x03,
		0xa4, 0x02, 0x30, 0x00,
		0xa4, 0x02, 0x30, 0x00,
		0xa4, 0x06, 0x04, 0x04, 0x01, 0x02, 0x03, 0x04,
		0xb9, 0x04, 0x30, 0x02, 0x30, 0x00, // pollReq with an empty entry
	})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := DecodeMessage(data, WithMaxNestingDepth(4))
		if err != nil {
			if _, ok := CodeOf(err); !ok {
				t.Fatalf("error is not a *cmp.Error: %v", err)
			}
			return
		}
		fuzzDecodeMessageSink = m

		der, err := m.Marshal(WithMaxNestingDepth(4))
		if err != nil {
			t.Fatalf("decoded message does not re-encode: %v", err)
		}
		if !bytes.Equal(der, data) {
			t.Fatalf("re-encoding differs from input\n got %x\nwant %x", der, data)
		}
		_, _ = m.ProtectedPart()
	})
}

var fuzzBERSink *Message

// FuzzDecodeMessageBER exercises the BER normalization path in front of the
// strict decoder.
func FuzzDecodeMessageBER(f *testing.F) {
	f.Add(minimalPKIConf)
	f.Add([]byte{0x30, 0x80, 0x30, 0x80, 0x02, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := DecodeMessage(data, WithBERInput())
		if err != nil {
			return
		}
		fuzzBERSink = m
		if _, err := m.Marshal(); err != nil {
			t.Fatalf("decoded message does not re-encode: %v", err)
		}
	})
}
