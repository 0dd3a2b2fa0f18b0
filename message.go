package cmp

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"

	"github.com/mdean75/cmp-lib/ber"
)

// Message is PKIMessage.
type Message struct {
	Header Header
	Body   Body
	// Protection is nil when the message is unprotected. The package carries
	// the bits only; computing and checking them is left to the caller.
	Protection *asn1.BitString
	// ExtraCerts is nil when absent.
	ExtraCerts []*x509.Certificate
}

// Messages is PKIMessages.
type Messages []*Message

// Type returns the body type of m, or -1 when m has no body.
func (m *Message) Type() BodyType {
	if m == nil || m.Body == nil {
		return -1
	}
	return m.Body.Type()
}

// DecodeMessage decodes and validates one DER-encoded PKIMessage. der must
// contain exactly one message with no trailing bytes. The returned message
// does not share memory with der.
func DecodeMessage(der []byte, opts ...Option) (*Message, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	m, err := decodeMessage(der, cfg)
	if err != nil {
		return nil, cfg.reject("decode", err)
	}
	return m, nil
}

// ParseMessage reads one PKIMessage from r and decodes it as DecodeMessage
// does. At most WithMaxMessageSize bytes are read.
func ParseMessage(r io.Reader, opts ...Option) (*Message, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	der, err := readAll(r, cfg.maxSize)
	if err != nil {
		return nil, cfg.reject("parse", err)
	}
	m, err := decodeMessage(der, cfg)
	if err != nil {
		return nil, cfg.reject("parse", err)
	}
	return m, nil
}

// DecodeMessages decodes and validates a DER-encoded PKIMessages sequence.
func DecodeMessages(der []byte, opts ...Option) (Messages, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(der, cfg)
	if err != nil {
		return nil, cfg.reject("decode", err)
	}
	return msgs, nil
}

// ParseMessages reads a PKIMessages sequence from r.
func ParseMessages(r io.Reader, opts ...Option) (Messages, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	der, err := readAll(r, cfg.maxSize)
	if err != nil {
		return nil, cfg.reject("parse", err)
	}
	msgs, err := decodeMessages(der, cfg)
	if err != nil {
		return nil, cfg.reject("parse", err)
	}
	return msgs, nil
}

// Marshal validates m and returns its DER encoding.
func (m *Message) Marshal(opts ...Option) ([]byte, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := validateMessage(m, 0, cfg); err != nil {
		return nil, cfg.reject("marshal", err)
	}
	b := cryptobyte.NewBuilder(nil)
	addMessage(b, m)
	der, err := b.Bytes()
	if err != nil {
		return nil, cfg.reject("marshal", encodeError(err))
	}
	return der, nil
}

// Marshal validates every message and returns the DER encoding of the
// PKIMessages sequence. An empty sequence is rejected.
func (ms Messages) Marshal(opts ...Option) ([]byte, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := validateMessages(ms, 0, cfg); err != nil {
		return nil, cfg.reject("marshal", err)
	}
	b := cryptobyte.NewBuilder(nil)
	addMessages(b, ms)
	der, err := b.Bytes()
	if err != nil {
		return nil, cfg.reject("marshal", encodeError(err))
	}
	return der, nil
}

// ProtectedPart returns the DER encoding of the ProtectedPart structure
// (RFC 4210 §5.1.3), the header and body over which protection is computed.
func (m *Message) ProtectedPart() ([]byte, error) {
	if m == nil || m.Body == nil {
		return nil, newError(CodeInvalidArgument, "message or body is nil")
	}
	b := cryptobyte.NewBuilder(nil)
	addSequence(b, func(b *cryptobyte.Builder) {
		addHeader(b, &m.Header)
		addBody(b, m.Body)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, encodeError(err)
	}
	return der, nil
}

func readAll(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return nil, newError(CodeInvalidArgument, "reader is nil")
	}
	if maxSize == UnlimitedMessageSize {
		der, err := io.ReadAll(r)
		if err != nil {
			return nil, wrapError(CodeInvalidArgument, "reading message", err)
		}
		return der, nil
	}
	der, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, wrapError(CodeInvalidArgument, "reading message", err)
	}
	if int64(len(der)) > maxSize {
		return nil, newError(CodeMessageTooLarge, fmt.Sprintf("message exceeds %d bytes", maxSize))
	}
	return der, nil
}

// normalize converts BER input to DER when WithBERInput is set. Nesting of
// ASN.1 elements is bounded in proportion to the allowed message nesting.
func (c *config) normalize(input []byte) ([]byte, error) {
	if !c.ber {
		return input, nil
	}
	der, rest, err := ber.Normalize(input, berLeafDepth+berLevelsPerMessage*c.maxDepth)
	switch {
	case errors.Is(err, ber.ErrTooDeep):
		return nil, wrapError(CodeNestingTooDeep, "normalizing BER input", err)
	case err != nil:
		return nil, wrapError(CodeBERConversion, "normalizing BER input", err)
	case len(rest) > 0:
		return nil, trailing("BER input")
	}
	return der, nil
}

// A nested body adds four element levels: the body tag, the PKIMessages
// SEQUENCE, the PKIMessage SEQUENCE and the next body tag.
const (
	berLevelsPerMessage = 4
	berLeafDepth        = 64
)

func decodeMessage(input []byte, cfg *config) (*Message, error) {
	der, err := cfg.normalize(input)
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(der)
	m, err := readMessage(&s, 0, cfg)
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, trailing("PKIMessage")
	}
	if err := validateMessage(m, 0, cfg); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeMessages(input []byte, cfg *config) (Messages, error) {
	der, err := cfg.normalize(input)
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(der)
	msgs, err := readMessages(&s, 0, cfg)
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, trailing("PKIMessages")
	}
	if err := validateMessages(msgs, 0, cfg); err != nil {
		return nil, err
	}
	return msgs, nil
}

// readMessage reads one PKIMessage at the given nesting depth.
func readMessage(s *cryptobyte.String, depth int, cfg *config) (*Message, error) {
	const what = "PKIMessage"
	seq, err := readSequence(s, what)
	if err != nil {
		return nil, err
	}
	m := &Message{}
	if m.Header, err = readHeader(&seq); err != nil {
		return nil, err
	}
	if m.Body, err = readBody(&seq, depth, cfg); err != nil {
		return nil, err
	}
	if c, present, err := readExplicit(&seq, 0, what+" protection"); err != nil {
		return nil, err
	} else if present {
		bs, err := readBitString(&c, what+" protection")
		if err != nil {
			return nil, err
		}
		if err := finish(c, what+" protection"); err != nil {
			return nil, err
		}
		m.Protection = &bs
	}
	if c, present, err := readExplicit(&seq, 1, what+" extraCerts"); err != nil {
		return nil, err
	} else if present {
		certs, err := readSequence(&c, what+" extraCerts")
		if err != nil {
			return nil, err
		}
		if m.ExtraCerts, err = readCertificates(certs, what+" extraCerts"); err != nil {
			return nil, err
		}
		if err := finish(c, what+" extraCerts"); err != nil {
			return nil, err
		}
	}
	return m, finish(seq, what)
}

func readMessages(s *cryptobyte.String, depth int, cfg *config) (Messages, error) {
	list, err := readSequence(s, "PKIMessages")
	if err != nil {
		return nil, err
	}
	msgs := Messages{}
	for !list.Empty() {
		m, err := readMessage(&list, depth, cfg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func addMessage(b *cryptobyte.Builder, m *Message) {
	if m == nil || m.Body == nil {
		b.SetError(newError(CodeInvalidArgument, "message or body is nil"))
		return
	}
	addSequence(b, func(b *cryptobyte.Builder) {
		addHeader(b, &m.Header)
		addBody(b, m.Body)
		if m.Protection != nil {
			addExplicit(b, 0, func(b *cryptobyte.Builder) {
				addBitString(b, *m.Protection)
			})
		}
		if m.ExtraCerts != nil {
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				addCertificates(b, m.ExtraCerts)
			})
		}
	})
}

func addMessages(b *cryptobyte.Builder, ms Messages) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, m := range ms {
			addMessage(b, m)
		}
	})
}

// encodeError converts a builder failure into an *Error.
func encodeError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrapError(CodeMalformedEncoding, "encoding PKIMessage", err)
}
