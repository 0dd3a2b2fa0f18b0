// Package pkiasn1 defines the object identifiers and small ASN.1 parameter
// types used by the Certificate Management Protocol (RFC 4210, RFC 9480,
// RFC 9481), together with a name database for diagnostics.
package pkiasn1

import "encoding/asn1"

// idIT is id-it, the arc under which CMP InfoTypeAndValue types are registered
// (RFC 4210 §5.3.19, RFC 9480).
var idIT = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 4}

func it(n int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, idIT...), n)
}

// InfoTypeAndValue types used in generalInfo, genm and genp.
var (
	OIDCAProtEncCert    = it(1)
	OIDSignKeyPairTypes = it(2)
	OIDEncKeyPairTypes  = it(3)
	OIDPreferredSymmAlg = it(4)
	OIDCAKeyUpdateInfo  = it(5)
	OIDCurrentCRL       = it(6)
	OIDUnsupportedOIDs  = it(7)
	OIDKeyPairParamReq  = it(10)
	OIDKeyPairParamRep  = it(11)
	OIDRevPassphrase    = it(12)
	OIDImplicitConfirm  = it(13)
	OIDConfirmWaitTime  = it(14)
	OIDOrigPKIMessage   = it(15)
	OIDSuppLangTags     = it(16)
	OIDCACerts          = it(17)
	OIDRootCAKeyUpdate  = it(18)
	OIDCertReqTemplate  = it(19)
	OIDRootCACert       = it(20)
	OIDCertProfile      = it(21)
	OIDCRLStatusList    = it(22)
	OIDCRLs             = it(23)
)

// MAC-based protection algorithms (RFC 4210 §5.1.3, RFC 9481 §6).
var (
	// OIDPasswordBasedMac identifies PBM protection. Parameters are PBMParameter.
	OIDPasswordBasedMac = asn1.ObjectIdentifier{1, 2, 840, 113533, 7, 66, 13}

	// OIDKemBasedMac identifies KEM-based MAC protection (RFC 9810).
	OIDKemBasedMac = asn1.ObjectIdentifier{1, 2, 840, 113533, 7, 66, 16}

	// OIDDHBasedMac identifies DH-based MAC protection. Parameters are DHBMParameter.
	OIDDHBasedMac = asn1.ObjectIdentifier{1, 2, 840, 113533, 7, 66, 30}

	// OIDPBMAC1 identifies PBMAC1 from PKCS #5 v2.1 (RFC 8018).
	OIDPBMAC1 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 14}
)

// One-way functions and MACs referenced from PBM and DHBM parameters.
var (
	OIDSHA256     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	OIDHMACSHA1   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 8, 1, 2}
	OIDHMACSHA256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	OIDHMACSHA384 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 10}
	OIDHMACSHA512 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}
)

// Signature-based protection algorithms (RFC 9481 §3).
var (
	OIDSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OIDSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	OIDSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	OIDRSASSAPSS       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	OIDECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	OIDECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	OIDECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	OIDEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
	OIDEd448           = asn1.ObjectIdentifier{1, 3, 101, 113}
)

// CRMF registration controls and info (RFC 4211 §6, §7).
var (
	OIDRegCtrlRegToken      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 1, 1}
	OIDRegCtrlAuthenticator = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 1, 2}
	OIDRegCtrlOldCertID     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 1, 5}
	OIDRegInfoUTF8Pairs     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 2, 1}
	OIDRegInfoCertReq       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 2, 2}
)
