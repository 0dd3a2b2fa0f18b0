/*
Package cmp implements the message envelope and DER codec of the Certificate
Management Protocol as defined in RFC 4210 (with the cmp2021 additions of
RFC 9480).

It decodes and encodes PKIMessage structures (header, the body CHOICE with all
27 operation kinds, protection bit string and extraCerts) and enforces the
structural rules the protocol places on a message before it is returned to the
caller or written to the wire. The package never computes or verifies
protection; it only carries the bits. Certificates, CRLs, certification
requests and names are referenced by value using crypto/x509, and CRMF
structures are carried as validated DER elements.
*/
package cmp

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the category of a CMP codec error.
type ErrorCode int

const (
	// CodeMalformedEncoding indicates bytes that are not valid DER for the
	// expected structure: a bad tag, a bad length, or a truncated buffer.
	CodeMalformedEncoding ErrorCode = iota
	// CodeTrailingData indicates bytes remaining after a complete structure was parsed.
	CodeTrailingData
	// CodeBERConversion indicates a failure while normalizing BER input to DER.
	CodeBERConversion
	// CodeInvalidVersion indicates a pvno outside the defined protocol versions.
	CodeInvalidVersion
	// CodeUnknownBodyType indicates a PKIBody alternative this package does not
	// implement. The offending tag is available in Error.Tag.
	CodeUnknownBodyType
	// CodeMalformedName indicates a GeneralName that is not well formed.
	CodeMalformedName
	// CodeMalformedCertificate indicates a certificate, CRL, or certification
	// request rejected by crypto/x509.
	CodeMalformedCertificate
	// CodeMissingProtectionAlgorithm indicates protection without a protectionAlg
	// in the header.
	CodeMissingProtectionAlgorithm
	// CodeMissingProtection indicates a message without protection that either
	// declares a protectionAlg or whose body kind requires protection.
	CodeMissingProtection
	// CodeUnexpectedProtection indicates protection on a body kind the active
	// policy forbids to be protected.
	CodeUnexpectedProtection
	// CodeMissingTransactionID indicates a body kind that requires a transactionID
	// sent without one.
	CodeMissingTransactionID
	// CodeMissingSenderNonce indicates a body kind that requires a senderNonce
	// sent without one.
	CodeMissingSenderNonce
	// CodeEmptyNestedMessage indicates a nested body (or a PKIMessages value)
	// that contains no messages.
	CodeEmptyNestedMessage
	// CodeEmptyOptionalSequence indicates an OPTIONAL SEQUENCE SIZE (1..MAX)
	// that is present but empty. Absence is expressed by omitting the field.
	CodeEmptyOptionalSequence
	// CodeNestingTooDeep indicates nested messages deeper than the configured limit.
	CodeNestingTooDeep
	// CodeTransactionMismatch indicates a response whose transactionID differs
	// from the request it answers.
	CodeTransactionMismatch
	// CodeNonceMismatch indicates a response whose recipNonce does not echo the
	// request's senderNonce.
	CodeNonceMismatch
	// CodeMessageTooLarge indicates input larger than the configured size limit.
	CodeMessageTooLarge
	// CodeInvalidArgument indicates a nil or otherwise unusable argument, such as
	// a nil message, body, or certificate.
	CodeInvalidArgument
	// CodeInvalidConfiguration indicates an invalid option. Multiple configuration
	// errors are joined using errors.Join.
	CodeInvalidConfiguration
)

var codeNames = map[ErrorCode]string{
	CodeMalformedEncoding:          "MalformedEncoding",
	CodeTrailingData:               "TrailingData",
	CodeBERConversion:              "BERConversion",
	CodeInvalidVersion:             "InvalidVersion",
	CodeUnknownBodyType:            "UnknownBodyType",
	CodeMalformedName:              "MalformedName",
	CodeMalformedCertificate:       "MalformedCertificate",
	CodeMissingProtectionAlgorithm: "MissingProtectionAlgorithm",
	CodeMissingProtection:          "MissingProtection",
	CodeUnexpectedProtection:       "UnexpectedProtection",
	CodeMissingTransactionID:       "MissingTransactionID",
	CodeMissingSenderNonce:         "MissingSenderNonce",
	CodeEmptyNestedMessage:         "EmptyNestedMessage",
	CodeEmptyOptionalSequence:      "EmptyOptionalSequence",
	CodeNestingTooDeep:             "NestingTooDeep",
	CodeTransactionMismatch:        "TransactionMismatch",
	CodeNonceMismatch:              "NonceMismatch",
	CodeMessageTooLarge:            "MessageTooLarge",
	CodeInvalidArgument:            "InvalidArgument",
	CodeInvalidConfiguration:       "InvalidConfiguration",
}

// String returns the name of the error code.
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "Unknown"
}

// IsValidation reports whether the code describes bytes that were valid DER but
// violate a protocol rule, as opposed to bytes that were not a valid encoding
// of the schema at all.
func (c ErrorCode) IsValidation() bool {
	switch c {
	case CodeMissingProtectionAlgorithm,
		CodeMissingProtection,
		CodeUnexpectedProtection,
		CodeMissingTransactionID,
		CodeMissingSenderNonce,
		CodeEmptyNestedMessage,
		CodeEmptyOptionalSequence,
		CodeNestingTooDeep,
		CodeTransactionMismatch,
		CodeNonceMismatch:
		return true
	}
	return false
}

// Error is the error type returned by all cmp operations. It implements the error
// interface and supports error chain inspection via errors.Is and errors.As.
type Error struct {
	// Code identifies the category of this error.
	Code ErrorCode
	// Message is a human-readable description of the error.
	Message string
	// Cause is the underlying error that triggered this error, if any.
	Cause error
	// Tag is the offending PKIBody tag for CodeUnknownBodyType.
	Tag int
}

// Error returns a string representation of the error, including the cause if present.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error by comparing error codes. This
// enables errors.Is(err, cmp.ErrMissingProtectionAlgorithm) to match any *Error
// with the same code, regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for use with errors.Is. Errors returned by this package carry
// descriptive messages and causes; sentinels are used only for category matching.
var (
	ErrMalformedEncoding          = &Error{Code: CodeMalformedEncoding}
	ErrTrailingData               = &Error{Code: CodeTrailingData}
	ErrBERConversion              = &Error{Code: CodeBERConversion}
	ErrInvalidVersion             = &Error{Code: CodeInvalidVersion}
	ErrUnknownBodyType            = &Error{Code: CodeUnknownBodyType}
	ErrMalformedName              = &Error{Code: CodeMalformedName}
	ErrMalformedCertificate       = &Error{Code: CodeMalformedCertificate}
	ErrMissingProtectionAlgorithm = &Error{Code: CodeMissingProtectionAlgorithm}
	ErrMissingProtection          = &Error{Code: CodeMissingProtection}
	ErrUnexpectedProtection       = &Error{Code: CodeUnexpectedProtection}
	ErrMissingTransactionID       = &Error{Code: CodeMissingTransactionID}
	ErrMissingSenderNonce         = &Error{Code: CodeMissingSenderNonce}
	ErrEmptyNestedMessage         = &Error{Code: CodeEmptyNestedMessage}
	ErrEmptyOptionalSequence      = &Error{Code: CodeEmptyOptionalSequence}
	ErrNestingTooDeep             = &Error{Code: CodeNestingTooDeep}
	ErrTransactionMismatch        = &Error{Code: CodeTransactionMismatch}
	ErrNonceMismatch              = &Error{Code: CodeNonceMismatch}
	ErrMessageTooLarge            = &Error{Code: CodeMessageTooLarge}
	ErrInvalidArgument            = &Error{Code: CodeInvalidArgument}
	ErrInvalidConfiguration       = &Error{Code: CodeInvalidConfiguration}
)

// CodeOf returns the ErrorCode carried by err, or false if err does not wrap
// an *Error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsValidationError reports whether err is a protocol-rule violation rather
// than an encoding failure.
func IsValidationError(err error) bool {
	code, ok := CodeOf(err)
	return ok && code.IsValidation()
}

// newError creates a new Error with the given code and message.
func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// wrapError creates a new Error with the given code and message, wrapping cause.
func wrapError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func malformed(what string) *Error {
	return &Error{Code: CodeMalformedEncoding, Message: "malformed " + what}
}

func trailing(what string) *Error {
	return &Error{Code: CodeTrailingData, Message: "trailing data after " + what}
}

func unknownBodyType(tag int) *Error {
	return &Error{Code: CodeUnknownBodyType, Message: fmt.Sprintf("unknown PKIBody type [%d]", tag), Tag: tag}
}

// newConfigError creates a new CodeInvalidConfiguration Error with the given message.
func newConfigError(msg string) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: msg}
}

// joinErrors returns a joined error from the provided slice, or nil if empty.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
