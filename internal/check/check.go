// Package check runs one voltage check against a device: login, read
// telemetry, classify, log out.
package check

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/and161185/gwn-voltage/internal/client"
	"github.com/and161185/gwn-voltage/internal/voltage"
	"github.com/and161185/gwn-voltage/model"
	"go.uber.org/zap"
)

// Fixed outcome messages.
const (
	LoginFailedMessage    = "Login failed. Check IP/connectivity or authentication credentials."
	RetrievalFailedFormat = "API status retrieval failed. HTTP Code: %d"
	StructureInvalid      = "API response structure invalid: could not find 'inputVoltage' data."
)

//go:generate mockgen -source=check.go -destination=mocks/mock_check.go -package=mocks -mock_names=deviceClient=MockDeviceClient,authenticator=MockAuthenticator

type deviceClient interface {
	GetAuthenticated(ctx context.Context, url, token string) (json.RawMessage, error)
	Logout(ctx context.Context, url, deviceIP, token string) bool
}

type authenticator interface {
	Authenticate(ctx context.Context, nonceURL, loginURL, deviceIP string, creds model.Credentials) (string, error)
}

// Checker holds everything needed for one check run.
type Checker struct {
	client     deviceClient
	auth       authenticator
	endpoints  client.Endpoints
	device     string
	creds      model.Credentials
	thresholds model.Thresholds
	logger     *zap.SugaredLogger
}

// NewChecker wires a Checker for device.
func NewChecker(c deviceClient, a authenticator, ep client.Endpoints, device string,
	creds model.Credentials, th model.Thresholds, logger *zap.SugaredLogger) *Checker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Checker{
		client:     c,
		auth:       a,
		endpoints:  ep,
		device:     device,
		creds:      creds,
		thresholds: th,
		logger:     logger,
	}
}

// Run performs the check and returns its outcome. Once a token is held the
// session is logged out exactly once whatever the outcome; logout failures
// do not change the result.
func (c *Checker) Run(ctx context.Context) model.Outcome {
	token, err := c.auth.Authenticate(ctx, c.endpoints.Nonce, c.endpoints.Login, c.device, c.creds)
	if err != nil {
		c.logger.Debugw("authentication failed", "error", err)
		return model.Outcome{Status: model.Critical, Message: LoginFailedMessage}
	}
	defer c.client.Logout(context.WithoutCancel(ctx), c.endpoints.Logout, c.device, token)

	return c.telemetry(ctx, token)
}

func (c *Checker) telemetry(ctx context.Context, token string) model.Outcome {
	body, err := c.client.GetAuthenticated(ctx, c.endpoints.Telemetry, token)
	if err != nil {
		c.logger.Warnw("telemetry request failed", "error", err)
		return model.Outcome{
			Status:  model.Unknown,
			Message: fmt.Sprintf(RetrievalFailedFormat, client.StatusCode(err)),
		}
	}

	reading, err := voltage.ParseReading(body)
	if err != nil {
		c.logger.Warnw("telemetry shape invalid", "error", err)
		return model.Outcome{Status: model.Unknown, Message: StructureInvalid}
	}

	out := voltage.Evaluate(reading, c.thresholds, c.device)
	c.logger.Debugw("reading classified", "millivolts", reading.RawMilliunits, "status", out.Status.String())
	return out
}
