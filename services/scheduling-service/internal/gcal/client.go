package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/checkoutpanda/panda/services/scheduling-service/internal/availability"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/model"
)

// Access tokens within this margin of expiry are refreshed preemptively.
const expirySkew = 30 * time.Second

// TokenSaver persists refreshed Google tokens so the next request skips the
// refresh round-trip.
type TokenSaver interface {
	SaveGoogleTokens(ctx context.Context, merchantID, accessToken string, expiresAt time.Time, refreshToken string) error
}

// Client fetches free/busy periods from the Google Calendar API on behalf of
// a connected merchant, refreshing the OAuth access token as needed.
type Client struct {
	oauth   *oauth2.Config
	tokens  TokenSaver
	httpc   *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewClient(clientID, clientSecret string, tokens TokenSaver, logger *slog.Logger) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
		},
		tokens:  tokens,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://www.googleapis.com/calendar/v3",
		logger:  logger,
	}
}

type freeBusyRequest struct {
	TimeMin string             `json:"timeMin"`
	TimeMax string             `json:"timeMax"`
	Items   []freeBusyCalendar `json:"items"`
}

type freeBusyCalendar struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// FreeBusy returns the calendar's busy periods within [from, to].
func (c *Client) FreeBusy(ctx context.Context, merchantID string, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error) {
	token, err := c.ensureAccessToken(ctx, merchantID, conn)
	if err != nil {
		return nil, err
	}

	calendarID := conn.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	reqBody, err := json.Marshal(freeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []freeBusyCalendar{{ID: calendarID}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/freeBusy", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("freebusy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("freebusy API returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed freeBusyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("freebusy response parse failed: %w", err)
	}

	var periods []availability.Interval
	for _, cal := range parsed.Calendars {
		for _, b := range cal.Busy {
			start, err := time.Parse(time.RFC3339, b.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, b.End)
			if err != nil {
				continue
			}
			if end.After(start) {
				periods = append(periods, availability.Interval{Start: start, End: end})
			}
		}
	}
	return periods, nil
}

// ensureAccessToken returns a usable access token, refreshing through the
// OAuth refresh token when the stored one is absent or near expiry. A freshly
// refreshed token is persisted best-effort; failing to save it only costs an
// extra refresh on the next request.
func (c *Client) ensureAccessToken(ctx context.Context, merchantID string, conn model.CalendarConnection) (string, error) {
	if tokenUsable(conn, time.Now()) {
		return conn.AccessToken, nil
	}
	if conn.RefreshToken == "" {
		return "", fmt.Errorf("google calendar token expired and no refresh token stored")
	}

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("google token refresh failed: %w", err)
	}

	refresh := conn.RefreshToken
	if tok.RefreshToken != "" {
		refresh = tok.RefreshToken
	}
	if c.tokens != nil {
		if err := c.tokens.SaveGoogleTokens(ctx, merchantID, tok.AccessToken, tok.Expiry, refresh); err != nil {
			c.logger.Warn("failed to persist refreshed google token", "merchant_id", merchantID, "err", err)
		}
	}
	return tok.AccessToken, nil
}

func tokenUsable(conn model.CalendarConnection, now time.Time) bool {
	if conn.AccessToken == "" {
		return false
	}
	if conn.TokenExpiresAt.IsZero() {
		return false
	}
	return conn.TokenExpiresAt.After(now.Add(expirySkew))
}
