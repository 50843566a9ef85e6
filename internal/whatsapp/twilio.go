package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// TwilioProvider sends WhatsApp messages through the Twilio Messages API.
type TwilioProvider struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	from      string // whatsapp:+E164
	log       *zap.Logger
}

var _ Provider = (*TwilioProvider)(nil)

// NewTwilioProvider builds a provider with a bounded request timeout so
// a slow transport cannot hold a worker slot indefinitely.
func NewTwilioProvider(accountSID, authToken, from string, log *zap.Logger) *TwilioProvider {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	c.SetTimeout(10 * time.Second)

	return &TwilioProvider{
		client:    c,
		validator: twilioclient.NewRequestValidator(authToken),
		from:      whatsappAddress(from),
		log:       log,
	}
}

// SendText sends a freeform body. Freeform delivery only succeeds inside
// the 24-hour session window after the user's last inbound message.
func (p *TwilioProvider) SendText(_ context.Context, to, body string) (SendResult, error) {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(p.from)
	params.SetTo(whatsappAddress(to))
	params.SetBody(body)
	return p.send(params)
}

// SendTemplate sends an approved content template with positional
// variables ("1", "2", ...), usable outside the session window.
func (p *TwilioProvider) SendTemplate(_ context.Context, to, templateSID string, args []string) (SendResult, error) {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(p.from)
	params.SetTo(whatsappAddress(to))
	params.SetContentSid(templateSID)

	vars := map[string]string{}
	for i, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			vars[fmt.Sprintf("%d", i+1)] = a
		}
	}
	// A template without variables must not receive any (Twilio 63016).
	if len(vars) > 0 {
		buf, err := json.Marshal(vars)
		if err != nil {
			return SendResult{}, err
		}
		params.SetContentVariables(string(buf))
	}
	return p.send(params)
}

func (p *TwilioProvider) send(params *openapi.CreateMessageParams) (SendResult, error) {
	msg, err := p.client.Api.CreateMessage(params)
	if err != nil {
		p.log.Warn("twilio send failed", zap.Error(err))
		return SendResult{Error: err.Error()}, err
	}

	res := SendResult{Success: true}
	if msg.Sid != nil {
		res.MessageID = *msg.Sid
	}
	if msg.Status != nil {
		res.Status = *msg.Status
	}
	if msg.ErrorCode != nil || msg.ErrorMessage != nil {
		res.Success = false
		if msg.ErrorMessage != nil {
			res.Error = *msg.ErrorMessage
		}
		if msg.ErrorCode != nil {
			res.Error = fmt.Sprintf("%s (code %d)", res.Error, *msg.ErrorCode)
		}
	}
	p.log.Debug("twilio message accepted",
		zap.String("sid", res.MessageID),
		zap.String("status", res.Status),
	)
	return res, nil
}

// ValidateSignature checks the X-Twilio-Signature header for a webhook
// request against the full request URL and its form parameters.
func (p *TwilioProvider) ValidateSignature(url string, params map[string]string, signature string) bool {
	return p.validator.Validate(url, params, signature)
}

// whatsappAddress prefixes a normalized phone number with the whatsapp:
// scheme Twilio expects, leaving already-prefixed values alone.
func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + domain.NormalizePhone(phone)
}
