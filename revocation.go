package cmp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// CertID identifies a certificate by issuer and serial number (RFC 4211 §6.5).
type CertID struct {
	Issuer       GeneralName
	SerialNumber *big.Int
}

func (id CertID) String() string {
	return fmt.Sprintf("%s serial %s", id.Issuer, id.SerialNumber)
}

func readCertID(s *cryptobyte.String, what string) (CertID, error) {
	seq, err := readSequence(s, what)
	if err != nil {
		return CertID{}, err
	}
	var id CertID
	if id.Issuer, err = readGeneralName(&seq, what+" issuer"); err != nil {
		return CertID{}, err
	}
	if id.SerialNumber, err = readBigInt(&seq, what+" serialNumber"); err != nil {
		return CertID{}, err
	}
	return id, finish(seq, what)
}

func addCertID(b *cryptobyte.Builder, id CertID) {
	addSequence(b, func(b *cryptobyte.Builder) {
		addGeneralName(b, id.Issuer, "certId issuer")
		if id.SerialNumber == nil {
			b.SetError(newError(CodeInvalidArgument, "certId serialNumber is nil"))
			return
		}
		b.AddASN1BigInt(id.SerialNumber)
	})
}

// RevDetails asks for one certificate to be revoked.
type RevDetails struct {
	// CertDetails is the DER CertTemplate identifying the certificate.
	CertDetails []byte
	// CRLEntryDetails is nil when absent.
	CRLEntryDetails []pkix.Extension
}

// RR is the revocation request payload.
type RR []RevDetails

// RP is the revocation response payload, RevRepContent.
type RP struct {
	Status []StatusInfo
	// RevCerts is nil when absent.
	RevCerts []CertID
	// CRLs is nil when absent.
	CRLs []*x509.RevocationList
}

func readRR(s *cryptobyte.String) (RR, error) {
	const what = "rr RevDetails"
	list, err := readSequence(s, "rr")
	if err != nil {
		return nil, err
	}
	out := RR{}
	for !list.Empty() {
		seq, err := readSequence(&list, what)
		if err != nil {
			return nil, err
		}
		var rd RevDetails
		if rd.CertDetails, err = readElement(&seq, cryptobyte_asn1.SEQUENCE, what+" certDetails"); err != nil {
			return nil, err
		}
		if !checkCertTemplate(rd.CertDetails) {
			return nil, malformed(what + " certDetails")
		}
		if rd.CRLEntryDetails, err = readOptionalExtensions(&seq, what+" crlEntryDetails"); err != nil {
			return nil, err
		}
		if err := finish(seq, what); err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

func (m RR) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		for _, rd := range m {
			addSequence(b, func(b *cryptobyte.Builder) {
				if !checkCertTemplate(rd.CertDetails) {
					b.SetError(malformed("rr certDetails"))
					return
				}
				b.AddBytes(rd.CertDetails)
				if rd.CRLEntryDetails != nil {
					addMarshaled(b, rd.CRLEntryDetails, "rr crlEntryDetails")
				}
			})
		}
	})
}

func readRP(s *cryptobyte.String) (RP, error) {
	const what = "rp"
	seq, err := readSequence(s, what)
	if err != nil {
		return RP{}, err
	}
	var m RP
	statuses, err := readSequence(&seq, what+" status")
	if err != nil {
		return RP{}, err
	}
	m.Status = []StatusInfo{}
	for !statuses.Empty() {
		si, err := readStatusInfo(&statuses)
		if err != nil {
			return RP{}, err
		}
		m.Status = append(m.Status, si)
	}
	if c, present, err := readExplicit(&seq, 0, what+" revCerts"); err != nil {
		return RP{}, err
	} else if present {
		ids, err := readSequence(&c, what+" revCerts")
		if err != nil {
			return RP{}, err
		}
		m.RevCerts = []CertID{}
		for !ids.Empty() {
			id, err := readCertID(&ids, what+" revCerts CertId")
			if err != nil {
				return RP{}, err
			}
			m.RevCerts = append(m.RevCerts, id)
		}
		if err := finish(c, what+" revCerts"); err != nil {
			return RP{}, err
		}
	}
	if c, present, err := readExplicit(&seq, 1, what+" crls"); err != nil {
		return RP{}, err
	} else if present {
		crls, err := readSequence(&c, what+" crls")
		if err != nil {
			return RP{}, err
		}
		if m.CRLs, err = readCRLs(crls, what+" crls"); err != nil {
			return RP{}, err
		}
		if err := finish(c, what+" crls"); err != nil {
			return RP{}, err
		}
	}
	return m, finish(seq, what)
}

func (m RP) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		addSequence(b, func(b *cryptobyte.Builder) {
			for _, si := range m.Status {
				addStatusInfo(b, si)
			}
		})
		if m.RevCerts != nil {
			addExplicit(b, 0, func(b *cryptobyte.Builder) {
				addSequence(b, func(b *cryptobyte.Builder) {
					for _, id := range m.RevCerts {
						addCertID(b, id)
					}
				})
			})
		}
		if m.CRLs != nil {
			addExplicit(b, 1, func(b *cryptobyte.Builder) {
				addCRLs(b, m.CRLs)
			})
		}
	})
}
