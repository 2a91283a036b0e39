package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// PushNotifier tries an active WebSocket session first and falls back to
// posting the contact request to a push provider endpoint. Either leg is
// best effort; the dispatcher already recorded the ledger entry.
type PushNotifier struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushNotifier) Notify(donorID string, req ContactRequest) error {
	if p.WS != nil {
		if err := p.WS.Notify(donorID, req); err == nil {
			return nil
		} else if !errors.Is(err, ErrNoSession) {
			return err
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(map[string]any{"donor_id": donorID, "request": req})
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
