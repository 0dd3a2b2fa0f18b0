package cmp

import (
	"encoding/asn1"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/crypto/cryptobyte"
)

// PKIStatus is the status value of a PKIStatusInfo (RFC 4210 §5.2.3).
type PKIStatus int

const (
	StatusAccepted               PKIStatus = 0 // you got exactly what you asked for
	StatusGrantedWithMods        PKIStatus = 1 // you got something like what you asked for
	StatusRejection              PKIStatus = 2 // you don't get it, more information elsewhere in the message
	StatusWaiting                PKIStatus = 3 // the request body part has not yet been processed
	StatusRevocationWarning      PKIStatus = 4 // a revocation is imminent
	StatusRevocationNotification PKIStatus = 5 // a revocation has occurred
	StatusKeyUpdateWarning       PKIStatus = 6 // update already done for the oldCertId in a kur
)

var statusNames = [...]string{
	"accepted", "grantedWithMods", "rejection", "waiting",
	"revocationWarning", "revocationNotification", "keyUpdateWarning",
}

func (s PKIStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("PKIStatus(%d)", int(s))
	}
	return statusNames[s]
}

// FailureInfo is the PKIFailureInfo named bit list. Bit n of the BIT STRING
// is 1<<n.
type FailureInfo uint32

const (
	FailBadAlg FailureInfo = 1 << iota
	FailBadMessageCheck
	FailBadRequest
	FailBadTime
	FailBadCertID
	FailBadDataFormat
	FailWrongAuthority
	FailIncorrectData
	FailMissingTimeStamp
	FailBadPOP
	FailCertRevoked
	FailCertConfirmed
	FailWrongIntegrity
	FailBadRecipientNonce
	FailTimeNotAvailable
	FailUnacceptedPolicy
	FailUnacceptedExtension
	FailAddInfoNotAvailable
	FailBadSenderNonce
	FailBadCertTemplate
	FailSignerNotTrusted
	FailTransactionIDInUse
	FailUnsupportedVersion
	FailNotAuthorized
	FailSystemUnavail
	FailSystemFailure
	FailDuplicateCertReq
)

var failureNames = [...]string{
	"badAlg", "badMessageCheck", "badRequest", "badTime", "badCertId",
	"badDataFormat", "wrongAuthority", "incorrectData", "missingTimeStamp",
	"badPOP", "certRevoked", "certConfirmed", "wrongIntegrity",
	"badRecipientNonce", "timeNotAvailable", "unacceptedPolicy",
	"unacceptedExtension", "addInfoNotAvailable", "badSenderNonce",
	"badCertTemplate", "signerNotTrusted", "transactionIdInUse",
	"unsupportedVersion", "notAuthorized", "systemUnavail", "systemFailure",
	"duplicateCertReq",
}

// Has reports whether every bit of flag is set in f.
func (f FailureInfo) Has(flag FailureInfo) bool {
	return f&flag == flag
}

// String lists the set bits by their ASN.1 names, separated by "|".
func (f FailureInfo) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i := 0; i < 32; i++ {
		if f&(1<<i) == 0 {
			continue
		}
		if i < len(failureNames) {
			names = append(names, failureNames[i])
		} else {
			names = append(names, fmt.Sprintf("bit%d", i))
		}
	}
	return strings.Join(names, "|")
}

// bitString returns the DER named-bit-list form: trailing zero bits are removed.
func (f FailureInfo) bitString() asn1.BitString {
	n := bits.Len32(uint32(f))
	out := asn1.BitString{Bytes: make([]byte, (n+7)/8), BitLength: n}
	for i := 0; i < n; i++ {
		if f&(1<<i) != 0 {
			out.Bytes[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

func failureInfoFromBitString(bs asn1.BitString) (FailureInfo, bool) {
	if bs.BitLength > 32 {
		return 0, false
	}
	if bs.BitLength > 0 && bs.At(bs.BitLength-1) == 0 {
		// Named bit lists drop trailing zero bits in DER.
		return 0, false
	}
	var f FailureInfo
	for i := 0; i < bs.BitLength; i++ {
		if bs.At(i) != 0 {
			f |= 1 << i
		}
	}
	return f, true
}

// FreeText is PKIFreeText, a sequence of UTF-8 strings. The first string
// carries the language tag named in the header's suppLangTags, if any. A nil
// FreeText is absent; a non-nil FreeText must not be empty.
type FreeText []string

func readFreeText(s cryptobyte.String, what string) (FreeText, error) {
	ft := FreeText{}
	for !s.Empty() {
		str, err := readUTF8String(&s, what)
		if err != nil {
			return nil, err
		}
		ft = append(ft, str)
	}
	return ft, nil
}

func addFreeText(b *cryptobyte.Builder, ft FreeText) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, s := range ft {
			addUTF8String(b, s)
		}
	})
}

// StatusInfo is PKIStatusInfo.
type StatusInfo struct {
	Status       PKIStatus
	StatusString FreeText
	// FailInfo is nil when the failInfo field is absent.
	FailInfo *FailureInfo
}

// String formats the status for diagnostics.
func (si StatusInfo) String() string {
	var sb strings.Builder
	sb.WriteString(si.Status.String())
	if si.FailInfo != nil {
		fmt.Fprintf(&sb, " (%s)", *si.FailInfo)
	}
	if len(si.StatusString) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(si.StatusString, "; "))
	}
	return sb.String()
}

func readStatusInfo(s *cryptobyte.String) (StatusInfo, error) {
	const what = "PKIStatusInfo"
	seq, err := readSequence(s, what)
	if err != nil {
		return StatusInfo{}, err
	}
	status, err := readInt64(&seq, what+" status")
	if err != nil {
		return StatusInfo{}, err
	}
	si := StatusInfo{Status: PKIStatus(status)}
	if ft, present, err := readOptionalSequence(&seq, what+" statusString"); err != nil {
		return StatusInfo{}, err
	} else if present {
		if si.StatusString, err = readFreeText(ft, what+" statusString"); err != nil {
			return StatusInfo{}, err
		}
	}
	if !seq.Empty() {
		bs, err := readBitString(&seq, what+" failInfo")
		if err != nil {
			return StatusInfo{}, err
		}
		f, ok := failureInfoFromBitString(bs)
		if !ok {
			return StatusInfo{}, malformed(what + " failInfo")
		}
		si.FailInfo = &f
	}
	return si, finish(seq, what)
}

func addStatusInfo(b *cryptobyte.Builder, si StatusInfo) {
	addSequence(b, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(int64(si.Status))
		if si.StatusString != nil {
			addFreeText(b, si.StatusString)
		}
		if si.FailInfo != nil {
			addBitString(b, si.FailInfo.bitString())
		}
	})
}
