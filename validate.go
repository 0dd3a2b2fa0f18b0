package cmp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"time"

	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	pkiasn1 "github.com/mdean75/cmp-lib/internal/asn1"
)

// Validate checks m against the structural rules of the protocol and the
// active policy (WithPolicy) without encoding it. It is the same check
// DecodeMessage applies after decoding and Marshal applies before encoding.
//
// The rules, in the order they are applied:
//
//   - protection requires a protectionAlg in the header
//   - a declared protectionAlg requires protection
//   - the policy's transactionID, senderNonce and protection rule for the body type
//   - nested bodies are non-empty and no deeper than WithMaxNestingDepth
//   - optional SIZE (1..MAX) sequences are absent rather than empty
func Validate(m *Message, opts ...Option) error {
	cfg, err := newConfig(opts)
	if err != nil {
		return err
	}
	return validateMessage(m, 0, cfg)
}

func validateMessages(ms Messages, depth int, cfg *config) error {
	if len(ms) == 0 {
		return newError(CodeEmptyNestedMessage, "PKIMessages contains no messages")
	}
	for i, m := range ms {
		if err := validateMessage(m, depth, cfg); err != nil {
			if m == nil {
				return err
			}
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

func validateMessage(m *Message, depth int, cfg *config) error {
	if m == nil {
		return newError(CodeInvalidArgument, "message is nil")
	}
	if m.Body == nil {
		return newError(CodeInvalidArgument, "message body is nil")
	}
	if depth > cfg.maxDepth {
		return newError(CodeNestingTooDeep, fmt.Sprintf("nested messages exceed maximum depth %d", cfg.maxDepth))
	}
	h := &m.Header
	if err := validateHeader(h); err != nil {
		return err
	}

	if m.Protection != nil {
		if h.ProtectionAlg == nil {
			return newError(CodeMissingProtectionAlgorithm, "message is protected but the header has no protectionAlg")
		}
		if !validBitString(*m.Protection) {
			return malformed("protection bit string")
		}
	} else if h.ProtectionAlg != nil {
		return newError(CodeMissingProtection, "header declares protectionAlg but the message is unprotected")
	}

	t := m.Body.Type()
	rule := cfg.policy.Rule(t)
	if rule.TransactionID && h.TransactionID == nil {
		return newError(CodeMissingTransactionID, fmt.Sprintf("%s message has no transactionID", t))
	}
	if rule.SenderNonce && h.SenderNonce == nil {
		return newError(CodeMissingSenderNonce, fmt.Sprintf("%s message has no senderNonce", t))
	}
	switch {
	case rule.Protection == Required && m.Protection == nil:
		return newError(CodeMissingProtection, fmt.Sprintf("%s message must be protected under policy %q", t, cfg.policy.Name))
	case rule.Protection == Forbidden && m.Protection != nil:
		return newError(CodeUnexpectedProtection, fmt.Sprintf("%s message must not be protected under policy %q", t, cfg.policy.Name))
	}

	if err := checkCertificates(m.ExtraCerts, "extraCerts"); err != nil {
		return err
	}
	return validateBody(m.Body, depth, cfg)
}

func validateHeader(h *Header) error {
	if !h.PVNO.Valid() {
		return newError(CodeInvalidVersion, "unsupported pvno "+h.PVNO.String())
	}
	if h.Sender.IsZero() {
		return newError(CodeMalformedName, "header sender is not set")
	}
	if h.Recipient.IsZero() {
		return newError(CodeMalformedName, "header recipient is not set")
	}
	if h.MessageTime != nil {
		if err := checkTime(*h.MessageTime, "messageTime"); err != nil {
			return err
		}
	}
	if err := checkAlgorithm(h.ProtectionAlg, "protectionAlg"); err != nil {
		return err
	}
	if err := nonEmpty(h.FreeText, "header freeText"); err != nil {
		return err
	}
	if err := nonEmpty(h.GeneralInfo, "header generalInfo"); err != nil {
		return err
	}
	return checkInfo(h.GeneralInfo, "header generalInfo")
}

// validateBody applies the payload rules of each body type.
func validateBody(body Body, depth int, cfg *config) error {
	switch b := body.(type) {
	case IR:
		return checkCertReqMessages(CertReqMessages(b))
	case CR:
		return checkCertReqMessages(CertReqMessages(b))
	case KUR:
		return checkCertReqMessages(CertReqMessages(b))
	case KRR:
		return checkCertReqMessages(CertReqMessages(b))
	case CCR:
		return checkCertReqMessages(CertReqMessages(b))
	case IP:
		return checkCertRepMessage(CertRepMessage(b))
	case CP:
		return checkCertRepMessage(CertRepMessage(b))
	case KUP:
		return checkCertRepMessage(CertRepMessage(b))
	case CCP:
		return checkCertRepMessage(CertRepMessage(b))
	case P10CR:
		if b.CSR == nil {
			return newError(CodeInvalidArgument, "p10cr certification request is nil")
		}
		return checkSigned(b.CSR.Raw, "p10cr certification request")
	case POPDecC:
		if len(b) > 0 && b[0].OWF == nil {
			return newError(CodeInvalidArgument, "popdecc first challenge has no owf")
		}
		for _, c := range b {
			if err := checkAlgorithm(c.OWF, "popdecc owf"); err != nil {
				return err
			}
		}
	case POPDecR:
		for _, v := range b {
			if v == nil {
				return newError(CodeInvalidArgument, "popdecr integer is nil")
			}
		}
	case KRP:
		if err := checkStatusInfo(b.Status); err != nil {
			return err
		}
		if b.NewSigCert != nil {
			if err := checkCertificate(b.NewSigCert, "krp newSigCert"); err != nil {
				return err
			}
		}
		if err := checkCertificates(b.CACerts, "krp caCerts"); err != nil {
			return err
		}
		if err := nonEmpty(b.KeyPairHist, "krp keyPairHist"); err != nil {
			return err
		}
		for _, ckp := range b.KeyPairHist {
			if err := checkCertifiedKeyPair(ckp); err != nil {
				return err
			}
		}
	case RR:
		for _, rd := range b {
			if !checkCertTemplate(rd.CertDetails) {
				return malformed("rr certDetails")
			}
			if err := nonEmpty(rd.CRLEntryDetails, "rr crlEntryDetails"); err != nil {
				return err
			}
		}
	case RP:
		for _, si := range b.Status {
			if err := checkStatusInfo(si); err != nil {
				return err
			}
		}
		if err := nonEmpty(b.RevCerts, "rp revCerts"); err != nil {
			return err
		}
		for _, id := range b.RevCerts {
			if err := checkCertID(id); err != nil {
				return err
			}
		}
		return checkCRLs(b.CRLs, "rp crls")
	case CKUAnn:
		if b.NewWithNew == nil || (!b.RootCAKeyUpdate && (b.OldWithNew == nil || b.NewWithOld == nil)) {
			return newError(CodeInvalidArgument, "ckuann is missing a required certificate")
		}
		for _, c := range []struct {
			cert *x509.Certificate
			what string
		}{{b.OldWithNew, "ckuann oldWithNew"}, {b.NewWithOld, "ckuann newWithOld"}, {b.NewWithNew, "ckuann newWithNew"}} {
			if c.cert != nil {
				if err := checkCertificate(c.cert, c.what); err != nil {
					return err
				}
			}
		}
	case CAnn:
		return checkCertificate(b.Certificate, "cann certificate")
	case RAnn:
		if err := checkCertID(b.CertID); err != nil {
			return err
		}
		if err := checkTime(b.WillBeRevokedAt, "rann willBeRevokedAt"); err != nil {
			return err
		}
		if err := checkTime(b.BadSinceDate, "rann badSinceDate"); err != nil {
			return err
		}
		return nonEmpty(b.CRLDetails, "rann crlDetails")
	case CRLAnn:
		for _, crl := range b {
			if err := checkCRL(crl, "crlann CRL"); err != nil {
				return err
			}
		}
	case PKIConf:
	case Nested:
		if len(b) == 0 {
			return newError(CodeEmptyNestedMessage, "nested body contains no messages")
		}
		if depth+1 > cfg.maxDepth {
			return newError(CodeNestingTooDeep, fmt.Sprintf("nested messages exceed maximum depth %d", cfg.maxDepth))
		}
		return validateMessages(Messages(b), depth+1, cfg)
	case GenM:
		return checkInfo(b, "genm")
	case GenP:
		return checkInfo(b, "genp")
	case ErrorMsg:
		if err := checkStatusInfo(b.Status); err != nil {
			return err
		}
		return nonEmpty(b.ErrorDetails, "error errorDetails")
	case CertConf:
		for _, cs := range b {
			if cs.StatusInfo != nil {
				if err := checkStatusInfo(*cs.StatusInfo); err != nil {
					return err
				}
			}
			if err := checkAlgorithm(cs.HashAlg, "certConf hashAlg"); err != nil {
				return err
			}
		}
	case PollReq:
	case PollRep:
		for _, r := range b {
			if err := nonEmpty(r.Reason, "pollRep reason"); err != nil {
				return err
			}
		}
	default:
		return newError(CodeInvalidArgument, fmt.Sprintf("unsupported body type %T", body))
	}
	return nil
}

// nonEmpty rejects an optional SIZE (1..MAX) sequence that is present but
// empty; nil means absent.
func nonEmpty[T any](list []T, what string) error {
	if list != nil && len(list) == 0 {
		return newError(CodeEmptyOptionalSequence, what+" is present but empty")
	}
	return nil
}

// checkSigned requires der to be the single SEQUENCE a parsed certificate,
// CSR or CRL keeps in Raw. Values built by hand have no Raw and cannot be
// encoded.
func checkSigned(der []byte, what string) error {
	if !isElement(der, cryptobyte_asn1.SEQUENCE) {
		return newError(CodeMalformedCertificate, what+" has no DER encoding in Raw")
	}
	return nil
}

func checkCertificate(c *x509.Certificate, what string) error {
	if c == nil {
		return newError(CodeInvalidArgument, what+" is nil")
	}
	return checkSigned(c.Raw, what)
}

func checkCRL(c *x509.RevocationList, what string) error {
	if c == nil {
		return newError(CodeInvalidArgument, what+" is nil")
	}
	return checkSigned(c.Raw, what)
}

func checkCertificates(certs []*x509.Certificate, what string) error {
	if err := nonEmpty(certs, what); err != nil {
		return err
	}
	for _, c := range certs {
		if err := checkCertificate(c, what); err != nil {
			return err
		}
	}
	return nil
}

func checkCRLs(crls []*x509.RevocationList, what string) error {
	if err := nonEmpty(crls, what); err != nil {
		return err
	}
	for _, c := range crls {
		if err := checkCRL(c, what); err != nil {
			return err
		}
	}
	return nil
}

// checkTime rejects times GeneralizedTime cannot carry exactly: DER encodes
// whole seconds of years 0000 through 9999.
func checkTime(t time.Time, what string) error {
	if t.Nanosecond() != 0 {
		return newError(CodeInvalidArgument, what+" has a fractional second")
	}
	if y := t.UTC().Year(); y < 0 || y > 9999 {
		return newError(CodeInvalidArgument, fmt.Sprintf("%s year %d cannot be encoded", what, y))
	}
	return nil
}

func checkAlgorithm(alg *pkix.AlgorithmIdentifier, what string) error {
	if alg != nil && !pkiasn1.Valid(alg.Algorithm) {
		return malformed(what + " algorithm")
	}
	return nil
}

func checkInfo(list []InfoTypeAndValue, what string) error {
	for _, itv := range list {
		if !pkiasn1.Valid(itv.Type) {
			return malformed(what + " infoType")
		}
		if itv.Value != nil && !isAnyElement(itv.Value) {
			return malformed(what + " infoValue")
		}
	}
	return nil
}

func checkStatusInfo(si StatusInfo) error {
	return nonEmpty(si.StatusString, "statusString")
}

func checkCertID(id CertID) error {
	if id.Issuer.IsZero() {
		return newError(CodeMalformedName, "certId issuer is not set")
	}
	if id.SerialNumber == nil {
		return newError(CodeInvalidArgument, "certId serialNumber is nil")
	}
	return nil
}

func checkAttributes(list []AttributeTypeAndValue, what string) error {
	if err := nonEmpty(list, what); err != nil {
		return err
	}
	for _, atv := range list {
		if !pkiasn1.Valid(atv.Type) || !isAnyElement(atv.Value) {
			return malformed(what)
		}
	}
	return nil
}

func checkCertReqMessages(msgs CertReqMessages) error {
	for _, m := range msgs {
		if !checkCertTemplate(m.CertTemplate) {
			return malformed("certTemplate")
		}
		if m.POPO != nil && !checkPOPO(m.POPO) {
			return malformed("popo")
		}
		if err := checkAttributes(m.Controls, "controls"); err != nil {
			return err
		}
		if err := checkAttributes(m.RegInfo, "regInfo"); err != nil {
			return err
		}
	}
	return nil
}

func checkCertifiedKeyPair(ckp CertifiedKeyPair) error {
	if (ckp.Certificate == nil) == (ckp.EncryptedCert == nil) {
		return newError(CodeInvalidArgument, "certifiedKeyPair needs exactly one of certificate and encryptedCert")
	}
	if ckp.Certificate != nil {
		return checkCertificate(ckp.Certificate, "certifiedKeyPair certificate")
	}
	return nil
}

func checkCertRepMessage(m CertRepMessage) error {
	if err := checkCertificates(m.CAPubs, "caPubs"); err != nil {
		return err
	}
	for _, r := range m.Response {
		if err := checkStatusInfo(r.Status); err != nil {
			return err
		}
		if r.CertifiedKeyPair != nil {
			if err := checkCertifiedKeyPair(*r.CertifiedKeyPair); err != nil {
				return err
			}
		}
	}
	return nil
}
