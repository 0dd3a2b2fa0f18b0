package cmp

import (
	"bytes"
	"fmt"
)

// CheckResponse reports whether resp answers req: both must carry the same
// transactionID, and resp's recipNonce must echo req's senderNonce when req
// sent one. Neither message is validated.
func CheckResponse(req, resp *Message) error {
	if req == nil || resp == nil {
		return newError(CodeInvalidArgument, "request or response is nil")
	}
	if !bytes.Equal(req.Header.TransactionID, resp.Header.TransactionID) ||
		(req.Header.TransactionID == nil) != (resp.Header.TransactionID == nil) {
		return newError(CodeTransactionMismatch,
			fmt.Sprintf("transactionID %x does not match request %x", resp.Header.TransactionID, req.Header.TransactionID))
	}
	if req.Header.SenderNonce != nil && !bytes.Equal(req.Header.SenderNonce, resp.Header.RecipNonce) {
		return newError(CodeNonceMismatch, "recipNonce does not echo the request senderNonce")
	}
	return nil
}
