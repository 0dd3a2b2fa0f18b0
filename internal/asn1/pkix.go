package pkiasn1

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
)

// PBMParameter holds the parameters of PasswordBasedMac protection as defined
// in RFC 4210, section 5.1.3.1.
type PBMParameter struct {
	// Salt is mixed with the shared secret before the one-way function runs.
	Salt []byte
	// OWF is the one-way function applied IterationCount times, e.g. SHA-256.
	OWF pkix.AlgorithmIdentifier
	// IterationCount is the number of OWF applications. RFC 9481 recommends at
	// least 10000.
	IterationCount int
	// MAC is the MAC algorithm keyed with the derived key, e.g. HMAC-SHA256.
	MAC pkix.AlgorithmIdentifier
}

// DHBMParameter holds the parameters of DHBasedMac protection as defined in
// RFC 4210, section 5.1.3.2.
type DHBMParameter struct {
	OWF pkix.AlgorithmIdentifier
	MAC pkix.AlgorithmIdentifier
}

// ParsePBMParameter decodes the parameters of a PasswordBasedMac
// AlgorithmIdentifier.
func ParsePBMParameter(alg pkix.AlgorithmIdentifier) (PBMParameter, error) {
	var p PBMParameter
	if !alg.Algorithm.Equal(OIDPasswordBasedMac) {
		return p, errors.New("pkiasn1: algorithm is not PasswordBasedMac")
	}
	if err := unmarshalParams(alg.Parameters, &p); err != nil {
		return PBMParameter{}, err
	}
	return p, nil
}

// ParseDHBMParameter decodes the parameters of a DHBasedMac AlgorithmIdentifier.
func ParseDHBMParameter(alg pkix.AlgorithmIdentifier) (DHBMParameter, error) {
	var p DHBMParameter
	if !alg.Algorithm.Equal(OIDDHBasedMac) {
		return p, errors.New("pkiasn1: algorithm is not DHBasedMac")
	}
	if err := unmarshalParams(alg.Parameters, &p); err != nil {
		return DHBMParameter{}, err
	}
	return p, nil
}

func unmarshalParams(raw asn1.RawValue, out any) error {
	if len(raw.FullBytes) == 0 {
		return errors.New("pkiasn1: algorithm parameters are absent")
	}
	rest, err := asn1.Unmarshal(raw.FullBytes, out)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return errors.New("pkiasn1: trailing data after algorithm parameters")
	}
	return nil
}
