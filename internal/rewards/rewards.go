// Package rewards talks to the external platform that hands out rewards at
// the end of a game.
package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

type Reward struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Amount int    `json:"amount"`
	Label  string `json:"label,omitempty"`
}

// Granter issues a reward for a finished game. A nil Reward with a nil
// error means the platform chose not to grant anything.
type Granter interface {
	Grant(ctx context.Context, gameID, userID string, outcome Outcome) (*Reward, error)
}

type nop struct{}

// Nop never grants anything. It is used when no platform is configured.
func Nop() Granter {
	return nop{}
}

func (nop) Grant(context.Context, string, string, Outcome) (*Reward, error) {
	return nil, nil
}

const (
	attempts       = 3
	attemptTimeout = 5 * time.Second
	initialBackoff = 200 * time.Millisecond
)

type HTTPGranter struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
	backoff  time.Duration
}

func NewHTTPGranter(baseURL string, client *http.Client, log zerolog.Logger) (*HTTPGranter, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid rewards url %q: %w", baseURL, err)
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPGranter{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/rewards",
		client:   client,
		log:      log,
		backoff:  initialBackoff,
	}, nil
}

type grantRequest struct {
	GameID  string  `json:"gameId"`
	UserID  string  `json:"userId"`
	Outcome Outcome `json:"outcome"`
}

type grantResponse struct {
	Reward *Reward `json:"reward"`
}

// Grant posts the outcome to the platform, retrying transport failures and
// 5xx responses with a doubling backoff.
func (g *HTTPGranter) Grant(ctx context.Context, gameID, userID string, outcome Outcome) (*Reward, error) {
	body, err := json.Marshal(grantRequest{GameID: gameID, UserID: userID, Outcome: outcome})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reward request: %w", err)
	}

	var lastErr error
	backoff := g.backoff

	for attempt := 1; attempt <= attempts; attempt++ {
		reward, retry, err := g.post(ctx, body)
		if err == nil {
			return reward, nil
		}
		lastErr = err

		g.log.Warn().Err(err).
			Str("user", userID).
			Int("attempt", attempt).
			Msg("REWARDS: Grant attempt failed")

		if !retry || attempt == attempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("failed to grant reward: %w", lastErr)
}

func (g *HTTPGranter) post(ctx context.Context, body []byte) (*Reward, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("received status %s", resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("received status %s", resp.Status)
	}

	var out grantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("failed to decode reward: %w", err)
	}

	return out.Reward, false, nil
}
