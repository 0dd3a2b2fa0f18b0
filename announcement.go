package cmp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// CKUAnn announces a CA key update. With RootCAKeyUpdate unset it is the
// cmp2000 CAKeyUpdAnnContent and all three certificates are required. With
// RootCAKeyUpdate set it is the cmp2021 RootCaKeyUpdateContent alternative,
// in which NewWithOld and OldWithNew are optional.
type CKUAnn struct {
	OldWithNew      *x509.Certificate
	NewWithOld      *x509.Certificate
	NewWithNew      *x509.Certificate
	RootCAKeyUpdate bool
}

// CAnn announces a newly issued CA certificate.
type CAnn struct {
	Certificate *x509.Certificate
}

// RAnn announces the (pending) revocation of a certificate, RevAnnContent.
type RAnn struct {
	Status          PKIStatus
	CertID          CertID
	WillBeRevokedAt time.Time
	BadSinceDate    time.Time
	// CRLDetails is nil when absent.
	CRLDetails []pkix.Extension
}

// CRLAnn announces new CRLs.
type CRLAnn []*x509.RevocationList

func readCKUAnn(s *cryptobyte.String) (CKUAnn, error) {
	const what = "ckuann"
	var m CKUAnn
	if v3, present, err := readExplicit(s, 0, what); err != nil {
		return CKUAnn{}, err
	} else if present {
		m.RootCAKeyUpdate = true
		seq, err := readSequence(&v3, what+" RootCaKeyUpdateContent")
		if err != nil {
			return CKUAnn{}, err
		}
		if m.NewWithNew, err = readCertificate(&seq, what+" newWithNew"); err != nil {
			return CKUAnn{}, err
		}
		for _, f := range []struct {
			tag  int
			name string
			dst  **x509.Certificate
		}{
			{0, "newWithOld", &m.NewWithOld},
			{1, "oldWithNew", &m.OldWithNew},
		} {
			c, present, err := readExplicit(&seq, f.tag, what+" "+f.name)
			if err != nil {
				return CKUAnn{}, err
			}
			if !present {
				continue
			}
			if *f.dst, err = readCertificate(&c, what+" "+f.name); err != nil {
				return CKUAnn{}, err
			}
			if err := finish(c, what+" "+f.name); err != nil {
				return CKUAnn{}, err
			}
		}
		if err := finish(seq, what+" RootCaKeyUpdateContent"); err != nil {
			return CKUAnn{}, err
		}
		return m, finish(v3, what)
	}

	seq, err := readSequence(s, what)
	if err != nil {
		return CKUAnn{}, err
	}
	if m.OldWithNew, err = readCertificate(&seq, what+" oldWithNew"); err != nil {
		return CKUAnn{}, err
	}
	if m.NewWithOld, err = readCertificate(&seq, what+" newWithOld"); err != nil {
		return CKUAnn{}, err
	}
	if m.NewWithNew, err = readCertificate(&seq, what+" newWithNew"); err != nil {
		return CKUAnn{}, err
	}
	return m, finish(seq, what)
}

func (m CKUAnn) marshal(b *cryptobyte.Builder) {
	if m.NewWithNew == nil || (!m.RootCAKeyUpdate && (m.OldWithNew == nil || m.NewWithOld == nil)) {
		b.SetError(newError(CodeInvalidArgument, "ckuann is missing a required certificate"))
		return
	}
	if !m.RootCAKeyUpdate {
		addSequence(b, func(b *cryptobyte.Builder) {
			addCertificate(b, m.OldWithNew, "ckuann oldWithNew")
			addCertificate(b, m.NewWithOld, "ckuann newWithOld")
			addCertificate(b, m.NewWithNew, "ckuann newWithNew")
		})
		return
	}
	addExplicit(b, 0, func(b *cryptobyte.Builder) {
		addSequence(b, func(b *cryptobyte.Builder) {
			addCertificate(b, m.NewWithNew, "ckuann newWithNew")
			if m.NewWithOld != nil {
				addExplicit(b, 0, func(b *cryptobyte.Builder) {
					addCertificate(b, m.NewWithOld, "ckuann newWithOld")
				})
			}
			if m.OldWithNew != nil {
				addExplicit(b, 1, func(b *cryptobyte.Builder) {
					addCertificate(b, m.OldWithNew, "ckuann oldWithNew")
				})
			}
		})
	})
}

func readCAnn(s *cryptobyte.String) (CAnn, error) {
	cert, err := readCertificate(s, "cann certificate")
	if err != nil {
		return CAnn{}, err
	}
	return CAnn{Certificate: cert}, nil
}

func (m CAnn) marshal(b *cryptobyte.Builder) {
	addCertificate(b, m.Certificate, "cann certificate")
}

func readRAnn(s *cryptobyte.String) (RAnn, error) {
	const what = "rann"
	seq, err := readSequence(s, what)
	if err != nil {
		return RAnn{}, err
	}
	var m RAnn
	status, err := readInt64(&seq, what+" status")
	if err != nil {
		return RAnn{}, err
	}
	m.Status = PKIStatus(status)
	if m.CertID, err = readCertID(&seq, what+" certId"); err != nil {
		return RAnn{}, err
	}
	if m.WillBeRevokedAt, err = readGeneralizedTime(&seq, what+" willBeRevokedAt"); err != nil {
		return RAnn{}, err
	}
	if m.BadSinceDate, err = readGeneralizedTime(&seq, what+" badSinceDate"); err != nil {
		return RAnn{}, err
	}
	if m.CRLDetails, err = readOptionalExtensions(&seq, what+" crlDetails"); err != nil {
		return RAnn{}, err
	}
	return m, finish(seq, what)
}

func (m RAnn) marshal(b *cryptobyte.Builder) {
	addSequence(b, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(int64(m.Status))
		addCertID(b, m.CertID)
		addGeneralizedTime(b, m.WillBeRevokedAt)
		addGeneralizedTime(b, m.BadSinceDate)
		if m.CRLDetails != nil {
			addMarshaled(b, m.CRLDetails, "rann crlDetails")
		}
	})
}

func readCRLAnn(s *cryptobyte.String) (CRLAnn, error) {
	var list cryptobyte.String
	if !s.ReadASN1(&list, cryptobyte_asn1.SEQUENCE) {
		return nil, malformed("crlann")
	}
	crls, err := readCRLs(list, "crlann")
	return CRLAnn(crls), err
}

func (m CRLAnn) marshal(b *cryptobyte.Builder) {
	addCRLs(b, m)
}
