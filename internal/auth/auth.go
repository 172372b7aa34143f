// Package auth performs the device's nonce challenge-response login.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/gwn-voltage/internal/client"
	"github.com/and161185/gwn-voltage/internal/utils"
	"github.com/and161185/gwn-voltage/model"
	"go.uber.org/zap"
)

// ErrLoginFailed wraps every failure of the login handshake.
var ErrLoginFailed = errors.New("login failed")

//go:generate mockgen -source=auth.go -destination=mocks/mock_auth.go -package=mocks -mock_names=sessionClient=MockSessionClient

type sessionClient interface {
	FetchNonce(ctx context.Context, url, deviceIP string) (string, error)
	Login(ctx context.Context, url, deviceIP, username, challenge string) (string, error)
}

// State is a step of the login handshake.
type State int

const (
	NoNonce State = iota
	HaveNonce
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case NoNonce:
		return "no_nonce"
	case HaveNonce:
		return "have_nonce"
	case Authenticated:
		return "authenticated"
	default:
		return "failed"
	}
}

// Authenticator logs in to one device. It is not safe for concurrent use.
type Authenticator struct {
	client sessionClient
	logger *zap.SugaredLogger
	state  State
}

// NewAuthenticator returns an Authenticator in the NoNonce state.
func NewAuthenticator(c sessionClient, logger *zap.SugaredLogger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Authenticator{client: c, logger: logger}
}

// Authenticate fetches a nonce, answers the challenge and returns the session
// token. Any failure is terminal; nothing is retried.
func (a *Authenticator) Authenticate(ctx context.Context, nonceURL, loginURL, deviceIP string, creds model.Credentials) (string, error) {
	a.state = NoNonce

	nonce, err := a.client.FetchNonce(ctx, nonceURL, deviceIP)
	if err != nil {
		return a.fail("fetch nonce", err)
	}
	a.state = HaveNonce

	challenge := utils.ChallengeHash(creds.Username, nonce, creds.Password)
	token, err := a.client.Login(ctx, loginURL, deviceIP, creds.Username, challenge)
	if err != nil {
		return a.fail("login", err)
	}
	a.state = Authenticated
	a.logger.Debugw("authenticated", "device", deviceIP, "user", creds.Username, "token", client.Redact(token))
	return token, nil
}

func (a *Authenticator) fail(step string, err error) (string, error) {
	a.logger.Warnw("login failed", "step", step, "from", a.state.String(), "error", err)
	a.state = Failed
	return "", fmt.Errorf("%w: %s: %w", ErrLoginFailed, step, err)
}
