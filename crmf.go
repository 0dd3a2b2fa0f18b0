package cmp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

// AttributeTypeAndValue is a CRMF control or registration info entry
// (RFC 4211 §6, §7). Value is the complete DER element of the value.
type AttributeTypeAndValue struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// CertReqMsg is one CRMF certificate request (RFC 4211 §3). The certificate
// template and proof of possession are carried as DER elements that were
// checked for structure but not interpreted.
type CertReqMsg struct {
	CertReqID int64
	// CertTemplate is the DER SEQUENCE of the CertTemplate.
	CertTemplate []byte
	// Controls is nil when absent.
	Controls []AttributeTypeAndValue
	// POPO is the DER element of the ProofOfPossession CHOICE, or nil.
	POPO []byte
	// RegInfo is nil when absent.
	RegInfo []AttributeTypeAndValue
}

// CertReqMessages is the payload of ir, cr, kur, krr and ccr.
type CertReqMessages []CertReqMsg

type (
	IR  CertReqMessages
	CR  CertReqMessages
	KUR CertReqMessages
	KRR CertReqMessages
	CCR CertReqMessages
)

func (m IR) marshal(b *cryptobyte.Builder)  { addCertReqMessages(b, CertReqMessages(m)) }
func (m CR) marshal(b *cryptobyte.Builder)  { addCertReqMessages(b, CertReqMessages(m)) }
func (m KUR) marshal(b *cryptobyte.Builder) { addCertReqMessages(b, CertReqMessages(m)) }
func (m KRR) marshal(b *cryptobyte.Builder) { addCertReqMessages(b, CertReqMessages(m)) }
func (m CCR) marshal(b *cryptobyte.Builder) { addCertReqMessages(b, CertReqMessages(m)) }

// CertifiedKeyPair is an issued certificate, optionally with a centrally
// generated private key.
type CertifiedKeyPair struct {
	// Certificate is set for the certificate alternative of CertOrEncCert.
	Certificate *x509.Certificate
	// EncryptedCert is the DER EncryptedKey element of the encryptedCert
	// alternative. Exactly one of Certificate and EncryptedCert is set.
	EncryptedCert []byte
	// PrivateKey is the DER EncryptedKey element, or nil.
	PrivateKey []byte
	// PublicationInfo is the DER PKIPublicationInfo SEQUENCE, or nil.
	PublicationInfo []byte
}

// CertResponse answers one CertReqMsg.
type CertResponse struct {
	CertReqID        int64
	Status           StatusInfo
	CertifiedKeyPair *CertifiedKeyPair
	// RspInfo is nil when absent.
	RspInfo []byte
}

// CertRepMessage is the payload of ip, cp, kup and ccp.
type CertRepMessage struct {
	// CAPubs is nil when absent.
	CAPubs   []*x509.Certificate
	Response []CertResponse
}

type (
	IP  CertRepMessage
	CP  CertRepMessage
	KUP CertRepMessage
	CCP CertRepMessage
)

func (m IP) marshal(b *cryptobyte.Builder)  { addCertRepMessage(b, CertRepMessage(m)) }
func (m CP) marshal(b *cryptobyte.Builder)  { addCertRepMessage(b, CertRepMessage(m)) }
func (m KUP) marshal(b *cryptobyte.Builder) { addCertRepMessage(b, CertRepMessage(m)) }
func (m CCP) marshal(b *cryptobyte.Builder) { addCertRepMessage(b, CertRepMessage(m)) }

// P10CR carries a PKCS #10 certification request.
type P10CR struct {
	CSR *x509.CertificateRequest
}

func (m P10CR) marshal(b *cryptobyte.Builder) {
	if m.CSR == nil {
		b.SetError(newError(CodeInvalidArgument, "p10cr certification request is nil"))
		return
	}
	addSigned(b, m.CSR.Raw, "p10cr certification request")
}

// Challenge is one proof-of-possession challenge for a decryption key.
type Challenge struct {
	// OWF is nil when absent. The first challenge must carry it.
	OWF       *pkix.AlgorithmIdentifier
	Witness   []byte
	Challenge []byte
	// EncryptedRand is the DER EnvelopedData inside [0] (cmp2021), or nil.
	EncryptedRand []byte
}

// POPDecC is the popdecc payload.
type POPDecC []Challenge

// POPDecR is the popdecr payload: the decrypted integers, in challenge order.
type POPDecR []*big.Int

// KRP is the key recovery response payload, KeyRecRepContent.
type KRP struct {
	Status     StatusInfo
	NewSigCert *x509.Certificate
	// CACerts is nil when absent.
	CACerts []*x509.Certificate
	// KeyPairHist is nil when absent.
	KeyPairHist []CertifiedKeyPair
}

func readAttributes(s cryptobyte.String, what string) ([]AttributeTypeAndValue, error) {
	out := []AttributeTypeAndValue{}
	for !s.Empty() {
		seq, err := readSequence(&s, what)
		if err != nil {
			return nil, err
		}
		var atv AttributeTypeAndValue
		if !seq.ReadASN1ObjectIdentifier(&atv.Type) {
			return nil, malformed(what + " type")
		}
		if atv.Value, _, err = readAnyElement(&seq, what+" value"); err != nil {
			return nil, err
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, atv)
	}
	return out, nil
}

func addAttributes(b *cryptobyte.Builder, list []AttributeTypeAndValue, what string) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, atv := range list {
			if !pkiasn1.Valid(atv.Type) || !isAnyElement(atv.Value) {
				b.SetError(malformed(what))
				return
			}
			addSequence(b, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(atv.Type)
				b.AddBytes(atv.Value)
			})
		}
	})
}

// checkCertTemplate verifies that der is a CertTemplate SEQUENCE whose fields
// are context tags [0]..[9] in ascending order.
func checkCertTemplate(der []byte) bool {
	s := cryptobyte.String(der)
	var fields cryptobyte.String
	if !s.ReadASN1(&fields, cryptobyte_asn1.SEQUENCE) || !s.Empty() {
		return false
	}
	last := -1
	for !fields.Empty() {
		var v cryptobyte.String
		var tag cryptobyte_asn1.Tag
		if !fields.ReadAnyASN1(&v, &tag) || tag&0xc0 != 0x80 {
			return false
		}
		n := int(tag & 0x1f)
		if n > 9 || n <= last {
			return false
		}
		last = n
	}
	return true
}

// checkPOPO verifies the ProofOfPossession CHOICE: raVerified [0] NULL or one
// of the constructed alternatives [1]..[3].
func checkPOPO(der []byte) bool {
	s := cryptobyte.String(der)
	var v cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1(&v, &tag) || !s.Empty() {
		return false
	}
	switch tag {
	case cryptobyte_asn1.Tag(0).ContextSpecific():
		return v.Empty()
	case explicitTag(1), explicitTag(2), explicitTag(3):
		return true
	}
	return false
}

func readCertReqMessages(s *cryptobyte.String, what string) (CertReqMessages, error) {
	list, err := readSequence(s, what)
	if err != nil {
		return nil, err
	}
	msgs := CertReqMessages{}
	for !list.Empty() {
		msg, err := readCertReqMsg(&list, what)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func readCertReqMsg(s *cryptobyte.String, what string) (CertReqMsg, error) {
	what += " CertReqMsg"
	seq, err := readSequence(s, what)
	if err != nil {
		return CertReqMsg{}, err
	}
	req, err := readSequence(&seq, what+" certReq")
	if err != nil {
		return CertReqMsg{}, err
	}
	var m CertReqMsg
	if m.CertReqID, err = readInt64(&req, what+" certReqId"); err != nil {
		return CertReqMsg{}, err
	}
	if m.CertTemplate, err = readElement(&req, cryptobyte_asn1.SEQUENCE, what+" certTemplate"); err != nil {
		return CertReqMsg{}, err
	}
	if !checkCertTemplate(m.CertTemplate) {
		return CertReqMsg{}, malformed(what + " certTemplate")
	}
	if controls, present, err := readOptionalSequence(&req, what+" controls"); err != nil {
		return CertReqMsg{}, err
	} else if present {
		if m.Controls, err = readAttributes(controls, what+" controls"); err != nil {
			return CertReqMsg{}, err
		}
	}
	if err := finish(req, what+" certReq"); err != nil {
		return CertReqMsg{}, err
	}

	if !seq.Empty() && !seq.PeekASN1Tag(cryptobyte_asn1.SEQUENCE) {
		if m.POPO, _, err = readAnyElement(&seq, what+" popo"); err != nil {
			return CertReqMsg{}, err
		}
		if !checkPOPO(m.POPO) {
			return CertReqMsg{}, malformed(what + " popo")
		}
	}
	if regInfo, present, err := readOptionalSequence(&seq, what+" regInfo"); err != nil {
		return CertReqMsg{}, err
	} else if present {
		if m.RegInfo, err = readAttributes(regInfo, what+" regInfo"); err != nil {
			return CertReqMsg{}, err
		}
	}
	return m, finish(seq, what)
}

func addCertReqMessages(b *cryptobyte.Builder, msgs CertReqMessages) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, m := range msgs {
			addSequence(b, func(b *cryptobyte.Builder) {
				addSequence(b, func(b *cryptobyte.Builder) {
					b.AddASN1Int64(m.CertReqID)
					if !checkCertTemplate(m.CertTemplate) {
						b.SetError(malformed("certTemplate"))
						return
					}
					b.AddBytes(m.CertTemplate)
					if m.Controls != nil {
						addAttributes(b, m.Controls, "controls")
					}
				})
				if m.POPO != nil {
					if !checkPOPO(m.POPO) {
						b.SetError(malformed("popo"))
						return
					}
					b.AddBytes(m.POPO)
				}
				if m.RegInfo != nil {
					addAttributes(b, m.RegInfo, "regInfo")
				}
			})
		}
	})
}

func readCertifiedKeyPair(s *cryptobyte.String, what string) (CertifiedKeyPair, error) {
	seq, err := readSequence(s, what)
	if err != nil {
		return CertifiedKeyPair{}, err
	}
	var ckp CertifiedKeyPair
	var choice cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !seq.ReadAnyASN1(&choice, &tag) {
		return CertifiedKeyPair{}, malformed(what + " certOrEncCert")
	}
	switch tag {
	case explicitTag(0):
		if ckp.Certificate, err = readCertificate(&choice, what+" certificate"); err != nil {
			return CertifiedKeyPair{}, err
		}
	case explicitTag(1):
		if ckp.EncryptedCert, _, err = readAnyElement(&choice, what+" encryptedCert"); err != nil {
			return CertifiedKeyPair{}, err
		}
	default:
		return CertifiedKeyPair{}, malformed(what + " certOrEncCert")
	}
	if err := finish(choice, what+" certOrEncCert"); err != nil {
		return CertifiedKeyPair{}, err
	}
	if c, present, err := readExplicit(&seq, 0, what+" privateKey"); err != nil {
		return CertifiedKeyPair{}, err
	} else if present {
		if ckp.PrivateKey, _, err = readAnyElement(&c, what+" privateKey"); err != nil {
			return CertifiedKeyPair{}, err
		}
		if err := finish(c, what+" privateKey"); err != nil {
			return CertifiedKeyPair{}, err
		}
	}
	if c, present, err := readExplicit(&seq, 1, what+" publicationInfo"); err != nil {
		return CertifiedKeyPair{}, err
	} else if present {
		if ckp.PublicationInfo, err = readElement(&c, cryptobyte_asn1.SEQUENCE, what+" publicationInfo"); err != nil {
			return CertifiedKeyPair{}, err
		}
		if err := finish(c, what+" publicationInfo"); err != nil {
			return CertifiedKeyPair{}, err
		}
	}
	return ckp, finish(seq, what)
}

func addCertifiedKeyPair(b *cryptobyte.Builder, ckp CertifiedKeyPair) {
	addSequence(b, func(b *cryptobyte.Builder) {
		switch {
		case ckp.Certificate != nil && ckp.EncryptedCert == nil:
			addExplicit(b, 0, func(b *cryptobyte.Builder) {
				addCertificate(b, ckp.Certificate, "certifiedKeyPair certificate")
			})
		case ckp.Certificate == nil && isAnyElement(ckp.EncryptedCert):
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				b.AddBytes(ckp.EncryptedCert)
			})
		default:
			b.SetError(newError(CodeInvalidArgument, "certifiedKeyPair needs exactly one of certificate and encryptedCert"))
			return
		}
		if ckp.PrivateKey != nil {
			if !isAnyElement(ckp.PrivateKey) {
				b.SetError(malformed("certifiedKeyPair privateKey"))
				return
			}
			addExplicit(b, 0, func(b *cryptobyte.Builder) {
				b.AddBytes(ckp.PrivateKey)
			})
		}
		if ckp.PublicationInfo != nil {
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				addRaw(b, ckp.PublicationInfo, cryptobyte_asn1.SEQUENCE, "certifiedKeyPair publicationInfo")
			})
		}
	})
}

func readCertRepMessage(s *cryptobyte.String, what string) (CertRepMessage, error) {
	seq, err := readSequence(s, what)
	if err != nil {
		return CertRepMessage{}, err
	}
	var m CertRepMessage
	if c, present, err := readExplicit(&seq, 1, what+" caPubs"); err != nil {
		return CertRepMessage{}, err
	} else if present {
		certs, err := readSequence(&c, what+" caPubs")
		if err != nil {
			return CertRepMessage{}, err
		}
		if m.CAPubs, err = readCertificates(certs, what+" caPubs"); err != nil {
			return CertRepMessage{}, err
		}
		if err := finish(c, what+" caPubs"); err != nil {
			return CertRepMessage{}, err
		}
	}
	list, err := readSequence(&seq, what+" response")
	if err != nil {
		return CertRepMessage{}, err
	}
	m.Response = []CertResponse{}
	for !list.Empty() {
		r, err := readCertResponse(&list, what+" CertResponse")
		if err != nil {
			return CertRepMessage{}, err
		}
		m.Response = append(m.Response, r)
	}
	return m, finish(seq, what)
}

func readCertResponse(s *cryptobyte.String, what string) (CertResponse, error) {
	seq, err := readSequence(s, what)
	if err != nil {
		return CertResponse{}, err
	}
	var r CertResponse
	if r.CertReqID, err = readInt64(&seq, what+" certReqId"); err != nil {
		return CertResponse{}, err
	}
	if r.Status, err = readStatusInfo(&seq); err != nil {
		return CertResponse{}, err
	}
	if seq.PeekASN1Tag(cryptobyte_asn1.SEQUENCE) {
		ckp, err := readCertifiedKeyPair(&seq, what+" certifiedKeyPair")
		if err != nil {
			return CertResponse{}, err
		}
		r.CertifiedKeyPair = &ckp
	}
	if !seq.Empty() {
		if r.RspInfo, err = readOctetString(&seq, what+" rspInfo"); err != nil {
			return CertResponse{}, err
		}
	}
	return r, finish(seq, what)
}

func addCertRepMessage(b *cryptobyte.Builder, m CertRepMessage) {
	addSequence(b, func(b *cryptobyte.Builder) {
		if m.CAPubs != nil {
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				addCertificates(b, m.CAPubs)
			})
		}
		addSequence(b, func(b *cryptobyte.Builder) {
			for _, r := range m.Response {
				addSequence(b, func(b *cryptobyte.Builder) {
					b.AddASN1Int64(r.CertReqID)
					addStatusInfo(b, r.Status)
					if r.CertifiedKeyPair != nil {
						addCertifiedKeyPair(b, *r.CertifiedKeyPair)
					}
					if r.RspInfo != nil {
						b.AddASN1OctetString(r.RspInfo)
					}
				})
			}
		})
	})
}

func readP10CR(s *cryptobyte.String) (P10CR, error) {
	der, err := readElement(s, cryptobyte_asn1.SEQUENCE, "p10cr")
	if err != nil {
		return P10CR{}, err
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return P10CR{}, wrapError(CodeMalformedCertificate, "parsing p10cr certification request", err)
	}
	return P10CR{CSR: csr}, nil
}

func readPOPDecC(s *cryptobyte.String) (POPDecC, error) {
	const what = "popdecc Challenge"
	list, err := readSequence(s, "popdecc")
	if err != nil {
		return nil, err
	}
	out := POPDecC{}
	for !list.Empty() {
		seq, err := readSequence(&list, what)
		if err != nil {
			return nil, err
		}
		var c Challenge
		if seq.PeekASN1Tag(cryptobyte_asn1.SEQUENCE) {
			alg, err := readAlgorithmIdentifier(&seq, what+" owf")
			if err != nil {
				return nil, err
			}
			c.OWF = &alg
		}
		if c.Witness, err = readOctetString(&seq, what+" witness"); err != nil {
			return nil, err
		}
		if c.Challenge, err = readOctetString(&seq, what+" challenge"); err != nil {
			return nil, err
		}
		if rand, present, err := readExplicit(&seq, 0, what+" encryptedRand"); err != nil {
			return nil, err
		} else if present {
			if c.EncryptedRand, err = readElement(&rand, cryptobyte_asn1.SEQUENCE, what+" encryptedRand"); err != nil {
				return nil, err
			}
			if err := finish(rand, what+" encryptedRand"); err != nil {
				return nil, err
			}
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) > 0 && out[0].OWF == nil {
		return nil, malformed("popdecc first Challenge owf")
	}
	return out, nil
}

func (m POPDecC) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, c := range m {
			addSequence(b, func(b *cryptobyte.Builder) {
				if c.OWF != nil {
					addMarshaled(b, *c.OWF, "popdecc owf")
				}
				b.AddASN1OctetString(c.Witness)
				b.AddASN1OctetString(c.Challenge)
				if c.EncryptedRand != nil {
					addExplicit(b, 0, func(b *cryptobyte.Builder) {
						addRaw(b, c.EncryptedRand, cryptobyte_asn1.SEQUENCE, "popdecc encryptedRand")
					})
				}
			})
		}
	})
}

func readPOPDecR(s *cryptobyte.String) (POPDecR, error) {
	list, err := readSequence(s, "popdecr")
	if err != nil {
		return nil, err
	}
	out := POPDecR{}
	for !list.Empty() {
		v, err := readBigInt(&list, "popdecr")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m POPDecR) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, v := range m {
			if v == nil {
				b.SetError(newError(CodeInvalidArgument, "popdecr integer is nil"))
				return
			}
			b.AddASN1BigInt(v)
		}
	})
}

func readKRP(s *cryptobyte.String) (KRP, error) {
	const what = "krp"
	seq, err := readSequence(s, what)
	if err != nil {
		return KRP{}, err
	}
	var m KRP
	if m.Status, err = readStatusInfo(&seq); err != nil {
		return KRP{}, err
	}
	if c, present, err := readExplicit(&seq, 0, what+" newSigCert"); err != nil {
		return KRP{}, err
	} else if present {
		if m.NewSigCert, err = readCertificate(&c, what+" newSigCert"); err != nil {
			return KRP{}, err
		}
		if err := finish(c, what+" newSigCert"); err != nil {
			return KRP{}, err
		}
	}
	if c, present, err := readExplicit(&seq, 1, what+" caCerts"); err != nil {
		return KRP{}, err
	} else if present {
		certs, err := readSequence(&c, what+" caCerts")
		if err != nil {
			return KRP{}, err
		}
		if m.CACerts, err = readCertificates(certs, what+" caCerts"); err != nil {
			return KRP{}, err
		}
		if err := finish(c, what+" caCerts"); err != nil {
			return KRP{}, err
		}
	}
	if c, present, err := readExplicit(&seq, 2, what+" keyPairHist"); err != nil {
		return KRP{}, err
	} else if present {
		hist, err := readSequence(&c, what+" keyPairHist")
		if err != nil {
			return KRP{}, err
		}
		m.KeyPairHist = []CertifiedKeyPair{}
		for !hist.Empty() {
			ckp, err := readCertifiedKeyPair(&hist, what+" keyPairHist")
			if err != nil {
				return KRP{}, err
			}
			m.KeyPairHist = append(m.KeyPairHist, ckp)
		}
		if err := finish(c, what+" keyPairHist"); err != nil {
			return KRP{}, err
		}
	}
	return m, finish(seq, what)
}

func (m KRP) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		addStatusInfo(b, m.Status)
		if m.NewSigCert != nil {
			addExplicit(b, 0, func(b *cryptobyte.Builder) {
				addCertificate(b, m.NewSigCert, "krp newSigCert")
			})
		}
		if m.CACerts != nil {
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				addCertificates(b, m.CACerts)
			})
		}
		if m.KeyPairHist != nil {
			addExplicit(b, 2, func(b *cryptobyte.Builder) {
				addSequence(b, func(b *cryptobyte.Builder) {
					for _, ckp := range m.KeyPairHist {
						addCertifiedKeyPair(b, ckp)
					}
				})
			})
		}
	})
}
