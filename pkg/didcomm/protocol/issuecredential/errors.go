/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"errors"
	"fmt"

	"github.com/trustridge/credex-go/pkg/store/credexchange"
)

// Kind classifies manager errors.
type Kind int

// Manager error kinds.
const (
	// KindMalformedMessage means a schema-invalid payload was rejected before
	// any state mutation.
	KindMalformedMessage Kind = iota + 1
	// KindStateConflict means the record's state or role does not permit the
	// operation; the record is unchanged.
	KindStateConflict
	// KindNotFound means the referenced exchange or connection does not exist.
	KindNotFound
	// KindConnectionNotReady means the operation requires an active connection
	// that is not ready.
	KindConnectionNotReady
	// KindCryptoOrLedgerFailure means an external issuer/holder/ledger
	// collaborator failed; the record's error state has been saved.
	KindCryptoOrLedgerFailure
	// KindStorageFailure means the persistence layer failed.
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindMalformedMessage:
		return "malformed message"
	case KindStateConflict:
		return "state conflict"
	case KindNotFound:
		return "not found"
	case KindConnectionNotReady:
		return "connection not ready"
	case KindCryptoOrLedgerFailure:
		return "crypto or ledger failure"
	case KindStorageFailure:
		return "storage failure"
	default:
		return "unknown"
	}
}

// Error is a manager error. Record, when non-nil, is the exchange record as it
// was persisted when the error occurred, so callers always have the partial
// progress at hand.
type Error struct {
	Kind   Kind
	Record *credexchange.Record
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.msg, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorKind returns the Kind of err, or zero if err is not a manager error.
func ErrorKind(err error) Kind {
	var mgrErr *Error
	if errors.As(err, &mgrErr) {
		return mgrErr.Kind
	}

	return 0
}

// ErrorRecord returns the partial record attached to err, if any.
func ErrorRecord(err error) *credexchange.Record {
	var mgrErr *Error
	if errors.As(err, &mgrErr) {
		return mgrErr.Record
	}

	return nil
}

func newError(kind Kind, record *credexchange.Record, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Record: record, msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, record *credexchange.Record, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Record: record, msg: fmt.Sprintf(format, args...), cause: cause}
}
