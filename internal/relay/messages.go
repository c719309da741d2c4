package relay

import (
	"encoding/json"
	"fmt"
)

// Frame types on the relay wire. Inbound frames parse into one of the
// message structs below; anything else is an error, not a silent skip.
const (
	typeVerify         = "verify"
	typePing           = "ping"
	typeVerifyRequest  = "verify_request"
	typeVerifyResponse = "verify_response"
	typeAlert          = "alert"
)

// VerifyRequest asks the client to prove its license.
type VerifyRequest struct{}

// VerifyResponse reports the relay's verdict on the verify frame.
type VerifyResponse struct {
	Status string `json:"status"`
}

// AlertMessage is a trade signal pushed by the relay. Volume is optional.
type AlertMessage struct {
	Symbol string   `json:"symbol"`
	Volume *float64 `json:"volume,omitempty"`
	Action string   `json:"action"`
}

type verifyFrame struct {
	Type       string `json:"type"`
	LicenseKey string `json:"license_key"`
}

type pingFrame struct {
	Type string `json:"type"`
}

func newVerifyFrame(licenseKey string) verifyFrame {
	return verifyFrame{Type: typeVerify, LicenseKey: licenseKey}
}

func newPingFrame() pingFrame {
	return pingFrame{Type: typePing}
}

// parseMessage decodes one inbound frame into its typed form.
func parseMessage(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("relay frame: %w", err)
	}
	switch env.Type {
	case typeVerifyRequest:
		return VerifyRequest{}, nil
	case typeVerifyResponse:
		var m VerifyResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("verify_response frame: %w", err)
		}
		return m, nil
	case typeAlert:
		var m AlertMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("alert frame: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("relay frame: unknown type %q", env.Type)
	}
}
