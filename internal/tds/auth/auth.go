// Package auth defines the login-blob collaborator interface that the
// session engine calls into during LOGIN7/SSPI negotiation, without
// implementing any authentication mechanism itself (spec.md §6). The
// concrete mechanisms live in the kerberos, ntlm, and azuread
// subpackages.
package auth

import "context"

// LoginBlobProvider supplies the SSPI/token blob embedded in the
// LOGIN7 packet and, if a further round trip is needed, consumes the
// server's challenge (delivered as a tokenSSPI, 0xED, payload) and
// returns the next blob.
type LoginBlobProvider interface {
	// InitialBlob returns the first blob to embed in LOGIN7, plus
	// whether a further round trip is expected.
	InitialBlob(ctx context.Context, spn string) (blob []byte, continueNeeded bool, err error)
	// Continue feeds a server challenge back in and returns the next
	// blob. done is true once no further round trip is needed.
	Continue(ctx context.Context, serverBlob []byte) (blob []byte, done bool, err error)
}
