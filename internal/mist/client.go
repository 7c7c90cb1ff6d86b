// Package mist is the client for the Mist control-plane API. The only call
// this tool needs is the org-scoped onboarding command set.
package mist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ryanmadzima/onboarder/internal/config"
)

// RetrievalError reports a failed command-set fetch. It is fatal to the
// whole run: without the command set there is nothing to apply.
type RetrievalError struct {
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to retrieve onboarding commands: Mist API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("failed to retrieve onboarding commands: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Client talks to the Mist API for a single organization.
type Client struct {
	baseURL  string
	token    string
	orgID    string
	attempts uint64
	http     *http.Client
	logger   *slog.Logger
	cmdLog   *slog.Logger
}

// NewClient builds a Client from the API configuration. logger receives
// progress lines; cmdLog receives the raw command payload (privileged).
func NewClient(cfg config.APIConfig, logger, cmdLog *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		orgID:    cfg.OrgID,
		attempts: uint64(cfg.RetryAttempts),
		http:     &http.Client{Timeout: cfg.GetTimeout()},
		logger:   logger,
		cmdLog:   cmdLog,
	}
}

type commandResponse struct {
	Cmd string `json:"cmd"`
}

// FetchCommands retrieves the org's onboarding command set and splits it
// into ordered configuration lines. Blank lines are preserved; the session
// layer filters them before staging. Transient transport failures and 5xx
// responses are retried with backoff; auth and tenant errors are terminal
// immediately. Any persistent failure is returned as a *RetrievalError.
func (c *Client) FetchCommands(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/orgs/%s/ocdevices/outbound_ssh_cmd", c.baseURL, c.orgID)

	c.logger.InfoContext(ctx, "Connecting to Mist API",
		slog.String("org_id", c.orgID),
	)

	var raw string
	backoff := retry.WithMaxRetries(c.attempts, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		raw = body
		return nil
	})
	if err != nil {
		var re *RetrievalError
		if errors.As(err, &re) {
			err = re
		} else {
			err = &RetrievalError{Err: err}
		}
		c.logger.ErrorContext(ctx, "Could not get commands from Mist API",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	commands := strings.Split(raw, "\n")
	c.logger.InfoContext(ctx, "Got onboarding commands from Mist API",
		slog.Int("lines", len(commands)),
	)
	c.cmdLog.DebugContext(ctx, "Onboarding command set",
		slog.String("org_id", c.orgID),
		slog.String("commands", raw),
	)
	return commands, nil
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &RetrievalError{Err: err}
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		// Connection refused, DNS, TLS, timeout: worth another attempt.
		return "", retry.RetryableError(&RetrievalError{Err: err})
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		rerr := &RetrievalError{StatusCode: res.StatusCode}
		if res.StatusCode >= 500 {
			return "", retry.RetryableError(rerr)
		}
		return "", rerr
	}

	var payload commandResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", &RetrievalError{Err: fmt.Errorf("malformed response body: %w", err)}
	}
	if payload.Cmd == "" {
		return "", &RetrievalError{Err: fmt.Errorf("response is missing the cmd field")}
	}
	return payload.Cmd, nil
}
