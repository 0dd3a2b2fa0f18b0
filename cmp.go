package cmp

import (
	"bytes"
	"fmt"
	"io"
)

// FromBytes wraps a byte slice as an io.Reader for use with ParseMessage and
// ParseMessages.
func FromBytes(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Version is the PKIHeader pvno. The protocol versions are distinguished by the
// ASN.1 module revision they were defined in.
type Version int

const (
	// Version1999 is cmp1999, the RFC 2510 message syntax.
	Version1999 Version = 1
	// Version2000 is cmp2000, the RFC 4210 message syntax. This is the default.
	Version2000 Version = 2
	// Version2021 is cmp2021, required by RFC 9480 when any of its extensions
	// (for example CertStatus.hashAlg) are used.
	Version2021 Version = 3
)

// Valid reports whether v is a defined protocol version.
func (v Version) Valid() bool {
	return v >= Version1999 && v <= Version2021
}

func (v Version) String() string {
	switch v {
	case Version1999:
		return "cmp1999"
	case Version2000:
		return "cmp2000"
	case Version2021:
		return "cmp2021"
	}
	return fmt.Sprintf("pvno(%d)", int(v))
}

// DefaultMaxNestingDepth is the default number of nested body levels accepted
// by the decoder, encoder, and validator. Use WithMaxNestingDepth to override.
const DefaultMaxNestingDepth = 8

// DefaultMaxMessageSize is the default maximum input size in bytes read by
// ParseMessage and ParseMessages (64 MiB). Use WithMaxMessageSize to override.
const DefaultMaxMessageSize int64 = 64 * 1024 * 1024

// UnlimitedMessageSize disables the input size limit when passed to
// WithMaxMessageSize.
const UnlimitedMessageSize int64 = -1
