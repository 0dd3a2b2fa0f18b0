package cmp

import (
	"encoding/asn1"
	"time"

	"golang.org/x/crypto/cryptobyte"

	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

// InfoTypeAndValue is one entry of generalInfo, genm or genp.
type InfoTypeAndValue struct {
	Type asn1.ObjectIdentifier
	// Value is the complete DER element of infoValue, or nil when absent.
	Value []byte
}

// Name returns the registered name of the info type (for example
// "id-it-implicitConfirm"), or its dotted form when the type is unknown.
func (itv InfoTypeAndValue) Name() string {
	if name, ok := pkiasn1.Name(itv.Type); ok {
		return name
	}
	return itv.Type.String()
}

// ImplicitConfirm returns the generalInfo entry by which an end entity asks
// the CA to skip the certConf/pkiconf exchange (RFC 4210 §5.1.1.1).
func ImplicitConfirm() InfoTypeAndValue {
	return InfoTypeAndValue{Type: pkiasn1.OIDImplicitConfirm, Value: []byte{0x05, 0x00}}
}

// ConfirmWaitTime returns the generalInfo entry telling the end entity how
// long the CA will wait for a certConf (RFC 4210 §5.1.1.2). t must be a whole
// second in the years 0000 through 9999.
func ConfirmWaitTime(t time.Time) (InfoTypeAndValue, error) {
	if err := checkTime(t, "confirmWaitTime"); err != nil {
		return InfoTypeAndValue{}, err
	}
	b := cryptobyte.NewBuilder(nil)
	addGeneralizedTime(b, t)
	der, err := b.Bytes()
	if err != nil {
		return InfoTypeAndValue{}, wrapError(CodeInvalidArgument, "encoding confirmWaitTime", err)
	}
	return InfoTypeAndValue{Type: pkiasn1.OIDConfirmWaitTime, Value: der}, nil
}

// ImplicitConfirm reports whether generalInfo carries id-it-implicitConfirm.
func (h *Header) ImplicitConfirm() bool {
	_, ok := h.info(pkiasn1.OIDImplicitConfirm)
	return ok
}

// ConfirmWaitTime returns the id-it-confirmWaitTime value from generalInfo.
func (h *Header) ConfirmWaitTime() (time.Time, bool) {
	itv, ok := h.info(pkiasn1.OIDConfirmWaitTime)
	if !ok {
		return time.Time{}, false
	}
	s := cryptobyte.String(itv.Value)
	t, err := readGeneralizedTime(&s, "confirmWaitTime")
	if err != nil || !s.Empty() {
		return time.Time{}, false
	}
	return t, true
}

func (h *Header) info(oid asn1.ObjectIdentifier) (InfoTypeAndValue, bool) {
	for _, itv := range h.GeneralInfo {
		if itv.Type.Equal(oid) {
			return itv, true
		}
	}
	return InfoTypeAndValue{}, false
}

// readInfoTypeAndValues decodes the contents of a SEQUENCE OF InfoTypeAndValue.
func readInfoTypeAndValues(s cryptobyte.String, what string) ([]InfoTypeAndValue, error) {
	out := []InfoTypeAndValue{}
	for !s.Empty() {
		seq, err := readSequence(&s, what)
		if err != nil {
			return nil, err
		}
		var itv InfoTypeAndValue
		if !seq.ReadASN1ObjectIdentifier(&itv.Type) {
			return nil, malformed(what + " infoType")
		}
		if !seq.Empty() {
			if itv.Value, _, err = readAnyElement(&seq, what+" infoValue"); err != nil {
				return nil, err
			}
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, itv)
	}
	return out, nil
}

func addInfoTypeAndValues(b *cryptobyte.Builder, list []InfoTypeAndValue, what string) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, itv := range list {
			if !pkiasn1.Valid(itv.Type) {
				b.SetError(malformed(what + " infoType"))
				return
			}
			if itv.Value != nil && !isAnyElement(itv.Value) {
				b.SetError(malformed(what + " infoValue"))
				return
			}
			addSequence(b, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(itv.Type)
				b.AddBytes(itv.Value)
			})
		}
	})
}
