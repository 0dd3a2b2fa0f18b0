package cmp

import (
	"crypto/x509/pkix"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

// Header is PKIHeader. The optional byte-string fields use nil for absent and
// a non-nil (possibly empty) slice for present.
type Header struct {
	PVNO      Version
	Sender    GeneralName
	Recipient GeneralName

	// MessageTime is encoded in UTC with second precision.
	MessageTime   *time.Time
	ProtectionAlg *pkix.AlgorithmIdentifier
	SenderKID     []byte
	RecipKID      []byte
	TransactionID []byte
	SenderNonce   []byte
	RecipNonce    []byte
	FreeText      FreeText
	GeneralInfo   []InfoTypeAndValue
}

// Explicit context tags of the optional PKIHeader fields.
const (
	tagMessageTime = iota
	tagProtectionAlg
	tagSenderKID
	tagRecipKID
	tagTransactionID
	tagSenderNonce
	tagRecipNonce
	tagFreeText
	tagGeneralInfo
)

func readHeader(s *cryptobyte.String) (Header, error) {
	const what = "PKIHeader"
	seq, err := readSequence(s, what)
	if err != nil {
		return Header{}, err
	}
	var h Header
	pvno, err := readInt64(&seq, what+" pvno")
	if err != nil {
		return Header{}, err
	}
	h.PVNO = Version(pvno)
	if !h.PVNO.Valid() {
		return Header{}, newError(CodeInvalidVersion, "unsupported pvno "+h.PVNO.String())
	}
	if h.Sender, err = readGeneralName(&seq, what+" sender"); err != nil {
		return Header{}, err
	}
	if h.Recipient, err = readGeneralName(&seq, what+" recipient"); err != nil {
		return Header{}, err
	}

	// Each optional field is an explicit wrapper holding exactly one element.
	field := func(tag int, name string, read func(c *cryptobyte.String, what string) error) error {
		c, present, err := readExplicit(&seq, tag, what+" "+name)
		if err != nil || !present {
			return err
		}
		if err := read(&c, what+" "+name); err != nil {
			return err
		}
		return finish(c, what+" "+name)
	}
	octets := func(dst *[]byte) func(c *cryptobyte.String, what string) error {
		return func(c *cryptobyte.String, what string) (err error) {
			*dst, err = readOctetString(c, what)
			return err
		}
	}

	if err := field(tagMessageTime, "messageTime", func(c *cryptobyte.String, what string) error {
		t, err := readGeneralizedTime(c, what)
		h.MessageTime = &t
		return err
	}); err != nil {
		return Header{}, err
	}
	if err := field(tagProtectionAlg, "protectionAlg", func(c *cryptobyte.String, what string) error {
		alg, err := readAlgorithmIdentifier(c, what)
		h.ProtectionAlg = &alg
		return err
	}); err != nil {
		return Header{}, err
	}
	for _, f := range []struct {
		tag  int
		name string
		dst  *[]byte
	}{
		{tagSenderKID, "senderKID", &h.SenderKID},
		{tagRecipKID, "recipKID", &h.RecipKID},
		{tagTransactionID, "transactionID", &h.TransactionID},
		{tagSenderNonce, "senderNonce", &h.SenderNonce},
		{tagRecipNonce, "recipNonce", &h.RecipNonce},
	} {
		if err := field(f.tag, f.name, octets(f.dst)); err != nil {
			return Header{}, err
		}
	}
	if err := field(tagFreeText, "freeText", func(c *cryptobyte.String, what string) error {
		ft, err := readSequence(c, what)
		if err != nil {
			return err
		}
		h.FreeText, err = readFreeText(ft, what)
		return err
	}); err != nil {
		return Header{}, err
	}
	if err := field(tagGeneralInfo, "generalInfo", func(c *cryptobyte.String, what string) error {
		list, err := readSequence(c, what)
		if err != nil {
			return err
		}
		h.GeneralInfo, err = readInfoTypeAndValues(list, what)
		return err
	}); err != nil {
		return Header{}, err
	}
	return h, finish(seq, what)
}

func addHeader(b *cryptobyte.Builder, h *Header) {
	addSequence(b, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(int64(h.PVNO))
		addGeneralName(b, h.Sender, "sender")
		addGeneralName(b, h.Recipient, "recipient")
		if h.MessageTime != nil {
			addExplicit(b, tagMessageTime, func(b *cryptobyte.Builder) {
				addGeneralizedTime(b, *h.MessageTime)
			})
		}
		if h.ProtectionAlg != nil {
			addExplicit(b, tagProtectionAlg, func(b *cryptobyte.Builder) {
				addMarshaled(b, *h.ProtectionAlg, "protectionAlg")
			})
		}
		for _, f := range []struct {
			tag int
			v   []byte
		}{
			{tagSenderKID, h.SenderKID},
			{tagRecipKID, h.RecipKID},
			{tagTransactionID, h.TransactionID},
			{tagSenderNonce, h.SenderNonce},
			{tagRecipNonce, h.RecipNonce},
		} {
			if f.v == nil {
				continue
			}
			addExplicit(b, f.tag, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString(f.v)
			})
		}
		if h.FreeText != nil {
			addExplicit(b, tagFreeText, func(b *cryptobyte.Builder) {
				addFreeText(b, h.FreeText)
			})
		}
		if h.GeneralInfo != nil {
			addExplicit(b, tagGeneralInfo, func(b *cryptobyte.Builder) {
				addInfoTypeAndValues(b, h.GeneralInfo, "generalInfo")
			})
		}
	})
}
