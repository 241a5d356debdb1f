package faucet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"

	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

var desktopAgents = newDesktopAgents(uarand.UserAgents)

// newDesktopAgents keeps the Windows, macOS and Linux browser agents.
func newDesktopAgents(all []string) *uarand.UARand {
	var desktop []string
	for _, ua := range all {
		l := strings.ToLower(ua)
		if !strings.HasPrefix(l, "mozilla/5.0") || containsAny(l, "mobile", "android", "iphone", "ipad", "bot", "crawl", "spider") {
			continue
		}
		if containsAny(l, "windows nt", "macintosh", "x11") {
			desktop = append(desktop, ua)
		}
	}
	if len(desktop) == 0 {
		return uarand.Default
	}
	return uarand.NewWithCustomList(desktop)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Outcome is how the faucet answered a claim.
type Outcome int

const (
	Rejected Outcome = iota
	Claimed
	AlreadyClaimed
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case AlreadyClaimed:
		return "already_claimed"
	default:
		return "rejected"
	}
}

// Reply is the classified faucet response plus its raw body for logs.
type Reply struct {
	Outcome Outcome
	Body    string
}

type Config struct {
	URL     string
	Origin  string
	Note    string
	Timeout time.Duration
}

// Client posts claims to the native-token faucet API. One client per wallet:
// it goes out through that wallet's proxy with a fixed user agent.
type Client struct {
	cfg       Config
	http      *http.Client
	userAgent string
}

func New(cfg Config, px *wallet.ProxyConfig) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc, err := px.HTTPClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("faucet transport: %w", err)
	}
	return NewWithHTTPClient(cfg, hc), nil
}

func NewWithHTTPClient(cfg Config, hc *http.Client) *Client {
	return &Client{cfg: cfg, http: hc, userAgent: desktopAgents.GetRandom()}
}

type claimRequest struct {
	Type        string `json:"type"`
	User        string `json:"user"`
	Challenge   string `json:"challenge"`
	ChallengeV2 string `json:"challengeV2"`
}

// Claim submits one claim. Transport failures, 429 and 5xx come back as
// errors; any other answer is classified into a Reply.
func (c *Client) Claim(ctx context.Context, user common.Address, challengeToken string) (Reply, error) {
	payload, err := json.Marshal(claimRequest{
		Type:        "ethFaucet",
		User:        user.Hex(),
		Challenge:   challengeToken,
		ChallengeV2: c.cfg.Note,
	})
	if err != nil {
		return Reply{}, retry.Terminal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, retry.Terminal(err)
	}
	origin := strings.TrimRight(c.cfg.Origin, "/")
	headers := map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"Content-Type":    "application/json",
		"Origin":          origin,
		"Referer":         origin + "/",
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
		"User-Agent":      c.userAgent,
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, transportErr(ctx, fmt.Errorf("faucet claim: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, transportErr(ctx, fmt.Errorf("faucet claim: read body: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Reply{}, retry.Transient(fmt.Errorf("faucet claim: http status %d", resp.StatusCode))
	}
	return Reply{Outcome: Classify(body), Body: string(body)}, nil
}

// transportErr marks a failed exchange as worth another attempt unless the
// caller gave up.
func transportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return retry.Transient(err)
}

// Classify reads the faucet body. The "response" field is either an object
// carrying status 1 on success or a plain message string.
func Classify(body []byte) Outcome {
	if !gjson.ValidBytes(body) {
		return Rejected
	}
	res := gjson.GetBytes(body, "response")
	switch {
	case res.IsObject() && res.Get("status").Int() == 1:
		return Claimed
	case strings.Contains(res.String(), "user_already_claimed"):
		return AlreadyClaimed
	default:
		return Rejected
	}
}
