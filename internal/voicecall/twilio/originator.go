package twilio

import (
	"context"
	"errors"
	"fmt"

	"voice-bridge/internal/observability"

	twilioclient "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// OriginatorConfig holds what the carrier needs to place an outbound call.
type OriginatorConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	StreamURL  string
}

// Originator places outbound calls through the carrier's REST API. One
// stateless request per call, no retries.
type Originator struct {
	client *twilioclient.RestClient
	cfg    OriginatorConfig
	logger *observability.Logger
}

func NewOriginator(cfg OriginatorConfig, logger *observability.Logger) *Originator {
	client := twilioclient.NewRestClientWithParams(twilioclient.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Originator{client: client, cfg: cfg, logger: logger}
}

// PlaceCall dials toNumber and connects the answered call to the media-stream
// endpoint, carrying callContext as a stream parameter. It returns the
// carrier-assigned call SID.
func (o *Originator) PlaceCall(ctx context.Context, toNumber, callContext string) (string, error) {
	doc, err := StreamTwiML(o.cfg.StreamURL, "", map[string]string{"context": callContext})
	if err != nil {
		return "", fmt.Errorf("failed to build stream instructions: %w", err)
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(o.cfg.FromNumber)
	params.SetTwiml(doc)

	resp, err := o.client.Api.CreateCall(params)
	if err != nil {
		o.logger.Error(ctx, "carrier rejected outbound call", err)
		return "", fmt.Errorf("failed to place call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", errors.New("carrier returned no call SID")
	}

	o.logger.Info(ctx, fmt.Sprintf("outbound call placed: %s", *resp.Sid))
	return *resp.Sid, nil
}

// StreamTwiML renders the voice response that connects a call to the
// media-stream endpoint. An optional greeting is spoken while connecting, and
// params ride along as custom stream parameters that reappear in the stream's
// start frame.
func StreamTwiML(streamURL, greeting string, params map[string]string) (string, error) {
	stream := twiml.VoiceStream{
		Name: "voice-bridge-stream",
		Url:  streamURL,
	}
	for _, name := range []string{"context", "from"} {
		if value := params[name]; value != "" {
			stream.InnerElements = append(stream.InnerElements,
				twiml.VoiceParameter{Name: name, Value: value})
		}
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	var elements []twiml.Element
	if greeting != "" {
		elements = append(elements, &twiml.VoiceSay{Message: greeting})
	}
	elements = append(elements, connect)

	return twiml.Voice(elements)
}
