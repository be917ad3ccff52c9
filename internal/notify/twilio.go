package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/banshee-data/congestion.report/internal/httputil"
)

// Environment variables holding Twilio settings.
const (
	EnvAccountSID = "TWILIO_ACCOUNT_SID"
	EnvAuthToken  = "TWILIO_AUTH_TOKEN"
	EnvFromNumber = "TWILIO_FROM_NUMBER"
	EnvToNumber   = "TWILIO_TO_NUMBER"
)

// ErrMissingCredentials is returned when Twilio settings are incomplete.
var ErrMissingCredentials = errors.New("twilio credentials or numbers incomplete")

// TwilioCredentials identifies the sending account.
type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Complete reports whether every field is set.
func (c TwilioCredentials) Complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioFromEnv reads credentials and the default recipient using getenv
// (normally os.Getenv).
func TwilioFromEnv(getenv func(string) string) (TwilioCredentials, string) {
	creds := TwilioCredentials{
		AccountSID: getenv(EnvAccountSID),
		AuthToken:  getenv(EnvAuthToken),
		FromNumber: getenv(EnvFromNumber),
	}
	return creds, getenv(EnvToNumber)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	creds  TwilioCredentials
	client httputil.HTTPClient
}

// NewTwilioSender returns a sender, or ErrMissingCredentials. A nil client
// selects httputil.NewStandardClient(nil).
func NewTwilioSender(creds TwilioCredentials, client httputil.HTTPClient) (*TwilioSender, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &TwilioSender{creds: creds, client: client}, nil
}

// restClient builds a Twilio REST client whose requests carry ctx.
func (s *TwilioSender) restClient(ctx context.Context) *twilio.RestClient {
	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(s.creds.AccountSID, s.creds.AuthToken),
		HTTPClient:  httputil.BindContext(ctx, s.client),
	}
	base.SetAccountSid(s.creds.AccountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   s.creds.AccountSID,
		Password:   s.creds.AuthToken,
		AccountSid: s.creds.AccountSID,
		Client:     base,
	})
}

// Send posts one message and returns the Twilio message SID.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("%w: no destination number", ErrMissingCredentials)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.creds.FromNumber)
	params.SetBody(body)

	msg, err := s.restClient(ctx).Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if msg == nil || msg.Sid == nil || *msg.Sid == "" {
		return "", errors.New("twilio response carried no message sid")
	}
	return *msg.Sid, nil
}
