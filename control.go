package cmp

import (
	"crypto/x509/pkix"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PKIConf is the pkiconf payload. It carries no data.
type PKIConf struct{}

// Nested carries complete PKIMessages, typically wrapped by an RA. It must
// not be empty.
type Nested Messages

// GenM is the general message payload.
type GenM []InfoTypeAndValue

// GenP is the general response payload.
type GenP []InfoTypeAndValue

// ErrorMsg is the error payload, ErrorMsgContent.
type ErrorMsg struct {
	Status StatusInfo
	// ErrorCode is an implementation-specific code, nil when absent.
	ErrorCode *int64
	// ErrorDetails is nil when absent.
	ErrorDetails FreeText
}

// CertStatus confirms or rejects one issued certificate.
type CertStatus struct {
	CertHash  []byte
	CertReqID int64
	// StatusInfo is nil when absent, which means acceptance.
	StatusInfo *StatusInfo
	// HashAlg is the cmp2021 hashAlg [0], used when the certificate's
	// signature algorithm does not determine the hash. Nil when absent.
	HashAlg *pkix.AlgorithmIdentifier
}

// CertConf is the certConf payload. An empty list is valid and means that
// all certificates were rejected without further detail.
type CertConf []CertStatus

// PollRequest asks about one pending request.
type PollRequest struct {
	CertReqID int64
}

// PollReq is the pollReq payload.
type PollReq []PollRequest

// PollResponse tells the client when to poll again.
type PollResponse struct {
	CertReqID int64
	// CheckAfter is the number of seconds to wait.
	CheckAfter int64
	// Reason is nil when absent.
	Reason FreeText
}

// PollRep is the pollRep payload.
type PollRep []PollResponse

func readPKIConf(s *cryptobyte.String) (PKIConf, error) {
	var null cryptobyte.String
	if !s.ReadASN1(&null, cryptobyte_asn1.NULL) || !null.Empty() {
		return PKIConf{}, malformed("pkiconf")
	}
	return PKIConf{}, nil
}

func (PKIConf) marshal(b *cryptobyte.Builder) {
	b.AddASN1NULL()
}

func readNested(s *cryptobyte.String, depth int, cfg *config) (Nested, error) {
	if depth+1 > cfg.maxDepth {
		return nil, newError(CodeNestingTooDeep, fmt.Sprintf("nested messages exceed maximum depth %d", cfg.maxDepth))
	}
	msgs, err := readMessages(s, depth+1, cfg)
	if err != nil {
		return nil, err
	}
	return Nested(msgs), nil
}

func (m Nested) marshal(b *cryptobyte.Builder) {
	addMessages(b, Messages(m))
}

func readGenContent(s *cryptobyte.String, what string) ([]InfoTypeAndValue, error) {
	list, err := readSequence(s, what)
	if err != nil {
		return nil, err
	}
	return readInfoTypeAndValues(list, what)
}

func (m GenM) marshal(b *cryptobyte.Builder) { addInfoTypeAndValues(b, m, "genm") }
func (m GenP) marshal(b *cryptobyte.Builder) { addInfoTypeAndValues(b, m, "genp") }

func readErrorMsg(s *cryptobyte.String) (ErrorMsg, error) {
	const what = "error"
	seq, err := readSequence(s, what)
	if err != nil {
		return ErrorMsg{}, err
	}
	var m ErrorMsg
	if m.Status, err = readStatusInfo(&seq); err != nil {
		return ErrorMsg{}, err
	}
	if seq.PeekASN1Tag(cryptobyte_asn1.INTEGER) {
		code, err := readInt64(&seq, what+" errorCode")
		if err != nil {
			return ErrorMsg{}, err
		}
		m.ErrorCode = &code
	}
	if details, present, err := readOptionalSequence(&seq, what+" errorDetails"); err != nil {
		return ErrorMsg{}, err
	} else if present {
		if m.ErrorDetails, err = readFreeText(details, what+" errorDetails"); err != nil {
			return ErrorMsg{}, err
		}
	}
	return m, finish(seq, what)
}

func (m ErrorMsg) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		addStatusInfo(b, m.Status)
		if m.ErrorCode != nil {
			b.AddASN1Int64(*m.ErrorCode)
		}
		if m.ErrorDetails != nil {
			addFreeText(b, m.ErrorDetails)
		}
	})
}

func readCertConf(s *cryptobyte.String) (CertConf, error) {
	const what = "certConf CertStatus"
	list, err := readSequence(s, "certConf")
	if err != nil {
		return nil, err
	}
	out := CertConf{}
	for !list.Empty() {
		seq, err := readSequence(&list, what)
		if err != nil {
			return nil, err
		}
		var cs CertStatus
		if cs.CertHash, err = readOctetString(&seq, what+" certHash"); err != nil {
			return nil, err
		}
		if cs.CertReqID, err = readInt64(&seq, what+" certReqId"); err != nil {
			return nil, err
		}
		if seq.PeekASN1Tag(cryptobyte_asn1.SEQUENCE) {
			si, err := readStatusInfo(&seq)
			if err != nil {
				return nil, err
			}
			cs.StatusInfo = &si
		}
		if c, present, err := readExplicit(&seq, 0, what+" hashAlg"); err != nil {
			return nil, err
		} else if present {
			alg, err := readAlgorithmIdentifier(&c, what+" hashAlg")
			if err != nil {
				return nil, err
			}
			if err := finish(c, what+" hashAlg"); err != nil {
				return nil, err
			}
			cs.HashAlg = &alg
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, nil
}

func (m CertConf) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, cs := range m {
			addSequence(b, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString(cs.CertHash)
				b.AddASN1Int64(cs.CertReqID)
				if cs.StatusInfo != nil {
					addStatusInfo(b, *cs.StatusInfo)
				}
				if cs.HashAlg != nil {
					addExplicit(b, 0, func(b *cryptobyte.Builder) {
						addMarshaled(b, *cs.HashAlg, "certConf hashAlg")
					})
				}
			})
		}
	})
}

func readPollReq(s *cryptobyte.String) (PollReq, error) {
	const what = "pollReq"
	list, err := readSequence(s, what)
	if err != nil {
		return nil, err
	}
	out := PollReq{}
	for !list.Empty() {
		seq, err := readSequence(&list, what)
		if err != nil {
			return nil, err
		}
		id, err := readInt64(&seq, what+" certReqId")
		if err != nil {
			return nil, err
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, PollRequest{CertReqID: id})
	}
	return out, nil
}

func (m PollReq) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, r := range m {
			addSequence(b, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(r.CertReqID)
			})
		}
	})
}

func readPollRep(s *cryptobyte.String) (PollRep, error) {
	const what = "pollRep"
	list, err := readSequence(s, what)
	if err != nil {
		return nil, err
	}
	out := PollRep{}
	for !list.Empty() {
		seq, err := readSequence(&list, what)
		if err != nil {
			return nil, err
		}
		var r PollResponse
		if r.CertReqID, err = readInt64(&seq, what+" certReqId"); err != nil {
			return nil, err
		}
		if r.CheckAfter, err = readInt64(&seq, what+" checkAfter"); err != nil {
			return nil, err
		}
		if reason, present, err := readOptionalSequence(&seq, what+" reason"); err != nil {
			return nil, err
		} else if present {
			if r.Reason, err = readFreeText(reason, what+" reason"); err != nil {
				return nil, err
			}
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m PollRep) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, r := range m {
			addSequence(b, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(r.CertReqID)
				b.AddASN1Int64(r.CheckAfter)
				if r.Reason != nil {
					addFreeText(b, r.Reason)
				}
			})
		}
	})
}
