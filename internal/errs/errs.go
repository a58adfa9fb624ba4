// Package errs collects the sentinel errors the core surfaces to callers.
//
// Every function in this module that can fail for one of these reasons
// returns (or wraps, via fmt.Errorf("%w", ...)) one of these values so
// callers can dispatch on them with errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrNoAccount means the key files are missing; the caller should
	// move to the account-creation flow.
	ErrNoAccount = errors.New("no account: key files not found")

	// ErrBadPassword means the private key could not be unsealed with
	// the supplied password. Callers should back off before re-prompting.
	ErrBadPassword = errors.New("bad password")

	// ErrKeystoreUnavailable means the key directory is not accessible.
	// This is the only fatal error kind.
	ErrKeystoreUnavailable = errors.New("keystore unavailable")

	// ErrStoreCorrupt means the contact store's blobs exist but could
	// not be decrypted or parsed. The caller must not save over it
	// without explicit confirmation.
	ErrStoreCorrupt = errors.New("contact store corrupt")

	// ErrPeerUnreachable means the connect phase failed or timed out.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrTransport means the framing layer saw EOF before a read
	// completed.
	ErrTransport = errors.New("connection lost")

	// ErrPeerUnauthenticated means a signature or fingerprint check
	// failed during the session protocol.
	ErrPeerUnauthenticated = errors.New("peer unauthenticated")

	// ErrInvalidInput means malformed user input (bad IP, empty name).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownContact is additive: the responder has no contact on
	// file for the connecting IP, so there is no fingerprint to check
	// against. Not part of the failure table in spec.md §7 — it asks
	// the caller to run the out-of-band trust flow instead of failing.
	ErrUnknownContact = errors.New("unknown contact")

	// ErrAuthFailure means an AES-EAX tag did not verify.
	ErrAuthFailure = errors.New("aead authentication failed")

	// ErrSignatureInvalid means an RSA-PKCS1v15 signature did not verify.
	ErrSignatureInvalid = errors.New("signature invalid")
)
