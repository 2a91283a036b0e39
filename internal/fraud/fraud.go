package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/plasma-match/internal/models"
)

// Gate vetoes automatic dispatch for a requester. It is consulted once
// per dispatch batch, never per donor.
type Gate interface {
	IsSuspicious(ctx context.Context, req models.Requester) bool
}

// StaticGate is the wiring default when no risk service is configured:
// nobody is suspicious.
type StaticGate struct{ Suspicious bool }

func (s StaticGate) IsSuspicious(ctx context.Context, req models.Requester) bool {
	return s.Suspicious
}

// HTTPGate posts the requester to an external risk service. A transport
// error or malformed response is treated as not-suspicious: the risk
// service being down must not block legitimate searches.
type HTTPGate struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewHTTPGate(endpoint string, logger *slog.Logger) *HTTPGate {
	return &HTTPGate{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, Logger: logger}
}

type gateResponse struct {
	IsFraud    bool    `json:"is_fraud"`
	FraudScore float64 `json:"fraud_score"`
}

func (g *HTTPGate) IsSuspicious(ctx context.Context, req models.Requester) bool {
	body, err := json.Marshal(map[string]any{"user": req})
	if err != nil {
		return false
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.Client.Do(httpReq)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Warn("fraud check failed, continuing without it", "error", err)
		}
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out gateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.IsFraud
}
