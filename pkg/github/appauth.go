package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// AppAuth exchanges a GitHub App identity for short-lived installation
// tokens. The underlying transport signs a JWT assertion (10-minute expiry,
// issuer = app id) and trades it at the platform token endpoint, refreshing
// transparently before expiry.
type AppAuth struct {
	transport *ghinstallation.Transport
}

// NewAppAuth builds an installation-token transport from the app identity.
// It does not perform network I/O; the first exchange happens on Token or on
// the first authenticated request.
func NewAppAuth(appID, installationID int64, privateKeyPEM []byte) (*AppAuth, error) {
	tr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to build installation transport: %w", err)
	}
	return &AppAuth{transport: tr}, nil
}

// Token returns a currently valid installation access token, exchanging the
// signed assertion if the cached token has expired. Callers must never log
// the returned value.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	token, err := a.transport.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("installation token exchange failed: %w", err)
	}
	return token, nil
}

// HTTPClient returns an HTTP client whose requests carry the installation
// token.
func (a *AppAuth) HTTPClient() *http.Client {
	return &http.Client{Transport: a.transport}
}
