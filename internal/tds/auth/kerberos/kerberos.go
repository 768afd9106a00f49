// Package kerberos implements the Kerberos LoginBlobProvider: the
// realistic analogue of SSPI-based integrated authentication on a
// non-Windows TDS client. Unlike the teacher's keytab-based acceptor
// (used to verify RPCSEC_GSS contexts on the server side), this
// provider is a gokrb5 client: it authenticates to the KDC and builds
// an AP-REQ addressed to the SQL Server's service principal.
package kerberos

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
)

// ErrNoCredential is returned when neither a keytab nor a password was
// configured.
var ErrNoCredential = errors.New("tds/auth/kerberos: no keytab or password configured")

// Config selects how the client authenticates to the KDC.
type Config struct {
	Username string
	Realm    string
	Krb5Conf *config.Config

	// Keytab-based auth (service accounts, unattended clients). Either
	// this or Password must be set.
	Keytab *keytab.Keytab
	// Password-derived key auth (interactive clients).
	Password string
}

// Provider is a LoginBlobProvider backed by a gokrb5 client. Kerberos
// is a single-round-trip mechanism at the TDS level: InitialBlob
// produces the AP-REQ and reports continueNeeded=false.
type Provider struct {
	cfg Config

	mu  sync.Mutex
	cl  *client.Client
}

// NewProvider creates a provider from cfg. The gokrb5 client is built
// lazily on first use so construction never talks to the network.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Keytab == nil && cfg.Password == "" {
		return nil, ErrNoCredential
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) client() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cl != nil {
		return p.cl, nil
	}

	var cl *client.Client
	if p.cfg.Keytab != nil {
		cl = client.NewWithKeytab(p.cfg.Username, p.cfg.Realm, p.cfg.Keytab, p.cfg.Krb5Conf, client.DisablePAFXFAST(true))
	} else {
		cl = client.NewWithPassword(p.cfg.Username, p.cfg.Realm, p.cfg.Password, p.cfg.Krb5Conf, client.DisablePAFXFAST(true))
	}
	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("tds/auth/kerberos: login: %w", err)
	}
	p.cl = cl
	return cl, nil
}

// InitialBlob resolves a service ticket for spn (the SQL Server's
// service principal, e.g. "MSSQLSvc/sqlhost.example.com:1433") and
// returns the marshalled AP-REQ as the login blob. Kerberos never
// needs a second round trip at the TDS layer.
func (p *Provider) InitialBlob(ctx context.Context, spn string) ([]byte, bool, error) {
	cl, err := p.client()
	if err != nil {
		return nil, false, err
	}

	tkt, sessionKey, err := cl.GetServiceTicket(spn)
	if err != nil {
		return nil, false, fmt.Errorf("tds/auth/kerberos: service ticket for %s: %w", spn, err)
	}

	apReq, err := messages.NewAPReq(tkt, sessionKey, newAuthenticator(cl.Credentials))
	if err != nil {
		return nil, false, fmt.Errorf("tds/auth/kerberos: build AP-REQ: %w", err)
	}

	blob, err := apReq.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("tds/auth/kerberos: marshal AP-REQ: %w", err)
	}
	return blob, false, nil
}

// Continue is never called for Kerberos logins (InitialBlob always
// reports continueNeeded=false) but is implemented for interface
// completeness should a mutual-auth variant require it in the future.
func (p *Provider) Continue(ctx context.Context, serverBlob []byte) ([]byte, bool, error) {
	return nil, true, nil
}

func newAuthenticator(creds *credentials.Credentials) messages.Authenticator {
	a, _ := messages.NewAuthenticator(creds.Domain(), creds.CName())
	return a
}
