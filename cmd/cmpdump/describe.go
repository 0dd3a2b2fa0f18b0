package main

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	cmp "github.com/mdean75/cmp-lib"
	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

// macSummary holds the parameters of PasswordBasedMac or DHBasedMac
// protection. Iterations and SaltLen are zero for DHBasedMac.
type macSummary struct {
	OWF        string `yaml:"owf"`
	MAC        string `yaml:"mac"`
	Iterations int    `yaml:"iterations,omitempty"`
	SaltLen    int    `yaml:"saltLength,omitempty"`
}

// summary is the printable view of one message.
type summary struct {
	Version       string      `yaml:"pvno"`
	Body          string      `yaml:"body"`
	Sender        string      `yaml:"sender"`
	Recipient     string      `yaml:"recipient"`
	MessageTime   string      `yaml:"messageTime,omitempty"`
	ProtectionAlg string      `yaml:"protectionAlg,omitempty"`
	PBM           *macSummary `yaml:"pbm,omitempty"`
	DHBM          *macSummary `yaml:"dhbm,omitempty"`
	SenderKID     string      `yaml:"senderKID,omitempty"`
	RecipKID      string      `yaml:"recipKID,omitempty"`
	TransactionID string      `yaml:"transactionID,omitempty"`
	SenderNonce   string      `yaml:"senderNonce,omitempty"`
	RecipNonce    string      `yaml:"recipNonce,omitempty"`
	FreeText      []string    `yaml:"freeText,omitempty"`
	GeneralInfo   []string    `yaml:"generalInfo,omitempty"`
	Protected     bool        `yaml:"protected"`
	ExtraCerts    []string    `yaml:"extraCerts,omitempty"`
	Details       []string    `yaml:"details,omitempty"`
	Nested        []summary   `yaml:"nested,omitempty"`
}

func describe(m *cmp.Message) summary {
	h := m.Header
	s := summary{
		Version:       h.PVNO.String(),
		Body:          m.Type().String(),
		Sender:        h.Sender.String(),
		Recipient:     h.Recipient.String(),
		SenderKID:     hexOrEmpty(h.SenderKID),
		RecipKID:      hexOrEmpty(h.RecipKID),
		TransactionID: hexOrEmpty(h.TransactionID),
		SenderNonce:   hexOrEmpty(h.SenderNonce),
		RecipNonce:    hexOrEmpty(h.RecipNonce),
		FreeText:      h.FreeText,
		Protected:     m.Protection != nil,
		ExtraCerts:    subjects(m.ExtraCerts),
	}
	if h.MessageTime != nil {
		s.MessageTime = h.MessageTime.Format(time.RFC3339)
	}
	if h.ProtectionAlg != nil {
		s.ProtectionAlg = oidName(h.ProtectionAlg.Algorithm)
		switch alg := *h.ProtectionAlg; {
		case alg.Algorithm.Equal(pkiasn1.OIDPasswordBasedMac):
			if p, err := pkiasn1.ParsePBMParameter(alg); err == nil {
				s.PBM = &macSummary{
					OWF:        oidName(p.OWF.Algorithm),
					MAC:        oidName(p.MAC.Algorithm),
					Iterations: p.IterationCount,
					SaltLen:    len(p.Salt),
				}
			}
		case alg.Algorithm.Equal(pkiasn1.OIDDHBasedMac):
			if p, err := pkiasn1.ParseDHBMParameter(alg); err == nil {
				s.DHBM = &macSummary{OWF: oidName(p.OWF.Algorithm), MAC: oidName(p.MAC.Algorithm)}
			}
		}
	}
	for _, itv := range h.GeneralInfo {
		s.GeneralInfo = append(s.GeneralInfo, itv.Name())
	}
	s.Details, s.Nested = describeBody(m.Body)
	return s
}

func describeBody(body cmp.Body) ([]string, []summary) {
	var lines []string
	switch b := body.(type) {
	case cmp.IR:
		lines = describeRequests(cmp.CertReqMessages(b))
	case cmp.CR:
		lines = describeRequests(cmp.CertReqMessages(b))
	case cmp.KUR:
		lines = describeRequests(cmp.CertReqMessages(b))
	case cmp.KRR:
		lines = describeRequests(cmp.CertReqMessages(b))
	case cmp.CCR:
		lines = describeRequests(cmp.CertReqMessages(b))
	case cmp.IP:
		lines = describeResponses(cmp.CertRepMessage(b))
	case cmp.CP:
		lines = describeResponses(cmp.CertRepMessage(b))
	case cmp.KUP:
		lines = describeResponses(cmp.CertRepMessage(b))
	case cmp.CCP:
		lines = describeResponses(cmp.CertRepMessage(b))
	case cmp.P10CR:
		if b.CSR != nil {
			lines = append(lines, "subject: "+b.CSR.Subject.String())
		}
	case cmp.POPDecC:
		lines = append(lines, fmt.Sprintf("challenges: %d", len(b)))
	case cmp.POPDecR:
		lines = append(lines, fmt.Sprintf("responses: %d", len(b)))
	case cmp.KRP:
		lines = append(lines, "status: "+b.Status.String())
		if b.NewSigCert != nil {
			lines = append(lines, "newSigCert: "+b.NewSigCert.Subject.String())
		}
		lines = append(lines, fmt.Sprintf("keyPairHist: %d", len(b.KeyPairHist)))
	case cmp.RR:
		for i, d := range b {
			lines = append(lines, fmt.Sprintf("revDetails[%d]: %d bytes, %d crlEntryDetails", i, len(d.CertDetails), len(d.CRLEntryDetails)))
		}
	case cmp.RP:
		for i, st := range b.Status {
			lines = append(lines, fmt.Sprintf("status[%d]: %s", i, st))
		}
		for i, id := range b.RevCerts {
			lines = append(lines, fmt.Sprintf("revCerts[%d]: %s serial %s", i, id.Issuer, id.SerialNumber))
		}
		if len(b.CRLs) > 0 {
			lines = append(lines, fmt.Sprintf("crls: %d", len(b.CRLs)))
		}
	case cmp.CKUAnn:
		for _, c := range []struct {
			name string
			cert *x509.Certificate
		}{{"oldWithNew", b.OldWithNew}, {"newWithOld", b.NewWithOld}, {"newWithNew", b.NewWithNew}} {
			if c.cert != nil {
				lines = append(lines, c.name+": "+c.cert.Subject.String())
			}
		}
	case cmp.CAnn:
		if b.Certificate != nil {
			lines = append(lines, "certificate: "+b.Certificate.Subject.String())
		}
	case cmp.RAnn:
		lines = append(lines,
			"status: "+b.Status.String(),
			fmt.Sprintf("certId: %s serial %s", b.CertID.Issuer, b.CertID.SerialNumber),
			"willBeRevokedAt: "+b.WillBeRevokedAt.Format(time.RFC3339),
			"badSinceDate: "+b.BadSinceDate.Format(time.RFC3339))
	case cmp.CRLAnn:
		for i, crl := range b {
			lines = append(lines, fmt.Sprintf("crl[%d]: %s, %d entries", i, crl.Issuer, len(crl.RevokedCertificateEntries)))
		}
	case cmp.PKIConf:
	case cmp.Nested:
		nested := make([]summary, 0, len(b))
		for _, inner := range b {
			nested = append(nested, describe(inner))
		}
		return nil, nested
	case cmp.GenM:
		lines = describeInfo(b)
	case cmp.GenP:
		lines = describeInfo(b)
	case cmp.ErrorMsg:
		lines = append(lines, "status: "+b.Status.String())
		if b.ErrorCode != nil {
			lines = append(lines, fmt.Sprintf("errorCode: %d", *b.ErrorCode))
		}
		for _, d := range b.ErrorDetails {
			lines = append(lines, "errorDetails: "+d)
		}
	case cmp.CertConf:
		for _, cs := range b {
			line := fmt.Sprintf("certReqId %d: certHash %s", cs.CertReqID, hex.EncodeToString(cs.CertHash))
			if cs.StatusInfo != nil {
				line += ", " + cs.StatusInfo.String()
			}
			lines = append(lines, line)
		}
	case cmp.PollReq:
		for _, p := range b {
			lines = append(lines, fmt.Sprintf("certReqId %d", p.CertReqID))
		}
	case cmp.PollRep:
		for _, p := range b {
			lines = append(lines, fmt.Sprintf("certReqId %d: checkAfter %ds", p.CertReqID, p.CheckAfter))
		}
	}
	return lines, nil
}

func describeRequests(msgs cmp.CertReqMessages) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		line := fmt.Sprintf("certReqId %d: template %d bytes", m.CertReqID, len(m.CertTemplate))
		if m.POPO != nil {
			line += ", popo"
		}
		lines = append(lines, line)
	}
	return lines
}

func describeResponses(rep cmp.CertRepMessage) []string {
	var lines []string
	if len(rep.CAPubs) > 0 {
		lines = append(lines, "caPubs: "+strings.Join(subjects(rep.CAPubs), "; "))
	}
	for _, r := range rep.Response {
		line := fmt.Sprintf("certReqId %d: %s", r.CertReqID, r.Status)
		if ckp := r.CertifiedKeyPair; ckp != nil && ckp.Certificate != nil {
			line += ", certificate " + ckp.Certificate.Subject.String()
		}
		lines = append(lines, line)
	}
	return lines
}

func describeInfo(list []cmp.InfoTypeAndValue) []string {
	lines := make([]string, 0, len(list))
	for _, itv := range list {
		lines = append(lines, "infoType: "+itv.Name())
	}
	return lines
}

func subjects(certs []*x509.Certificate) []string {
	var out []string
	for _, c := range certs {
		out = append(out, c.Subject.String())
	}
	return out
}

func oidName(oid asn1.ObjectIdentifier) string {
	if name, ok := pkiasn1.Name(oid); ok {
		return name
	}
	return oid.String()
}

func hexOrEmpty(b []byte) string {
	if b == nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func writeYAML(w io.Writer, s summary) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func writeText(w io.Writer, s summary) error {
	var sb strings.Builder
	appendText(&sb, s, "")
	_, err := io.WriteString(w, sb.String())
	return err
}

func appendText(sb *strings.Builder, s summary, indent string) {
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(sb, "%s%-14s %s\n", indent, name+":", value)
		}
	}
	field("pvno", s.Version)
	field("body", s.Body)
	field("sender", s.Sender)
	field("recipient", s.Recipient)
	field("messageTime", s.MessageTime)
	field("protectionAlg", s.ProtectionAlg)
	if s.PBM != nil {
		field("pbm", fmt.Sprintf("owf=%s mac=%s iterations=%d salt=%d bytes", s.PBM.OWF, s.PBM.MAC, s.PBM.Iterations, s.PBM.SaltLen))
	}
	if s.DHBM != nil {
		field("dhbm", fmt.Sprintf("owf=%s mac=%s", s.DHBM.OWF, s.DHBM.MAC))
	}
	field("senderKID", s.SenderKID)
	field("recipKID", s.RecipKID)
	field("transactionID", s.TransactionID)
	field("senderNonce", s.SenderNonce)
	field("recipNonce", s.RecipNonce)
	for _, t := range s.FreeText {
		field("freeText", t)
	}
	for _, g := range s.GeneralInfo {
		field("generalInfo", g)
	}
	field("protected", fmt.Sprint(s.Protected))
	for _, c := range s.ExtraCerts {
		field("extraCert", c)
	}
	for _, d := range s.Details {
		fmt.Fprintf(sb, "%s  %s\n", indent, d)
	}
	for i, n := range s.Nested {
		fmt.Fprintf(sb, "%snested[%d]:\n", indent, i)
		appendText(sb, n, indent+"  ")
	}
}
