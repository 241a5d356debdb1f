package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/logging"
	"github.com/ligun0805/hyperlend-runner/internal/retry"
	"github.com/ligun0805/hyperlend-runner/internal/wallet"
)

var ErrSolveTimeout = errors.New("captcha not solved before timeout")

// Challenge describes the Turnstile widget to solve. Proxy, when set, is
// forwarded to the solver so the token is bound to the wallet's exit IP.
type Challenge struct {
	SiteURL string
	SiteKey string
	Proxy   *wallet.ProxyConfig
}

// Solution is a single-use challenge token.
type Solution struct {
	Token string
}

// TaskError is an error reported by the solving service itself.
type TaskError struct {
	Code        string
	Description string
}

func (e *TaskError) Error() string {
	if e.Description == "" {
		return "capmonster: " + e.Code
	}
	return "capmonster: " + e.Code + ": " + e.Description
}

type Config struct {
	BaseURL string
	APIKey  string
	Poll    time.Duration
	Timeout time.Duration
	// HTTP covers transport failures of createTask and getTaskResult.
	HTTP retry.Policy
	// OnSolve observes each finished solve ("ok" or an error class).
	OnSolve func(outcome string)
}

// Solver talks to the CapMonster Cloud task API.
type Solver struct {
	cfg  Config
	http *http.Client
	log  logrus.FieldLogger
}

func NewSolver(cfg Config, httpClient *http.Client, log logrus.FieldLogger) *Solver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.capmonster.cloud"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Poll <= 0 {
		cfg.Poll = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Solver{cfg: cfg, http: httpClient, log: log}
}

type turnstileTask struct {
	Type          string `json:"type"`
	WebsiteURL    string `json:"websiteURL"`
	WebsiteKey    string `json:"websiteKey"`
	ProxyType     string `json:"proxyType,omitempty"`
	ProxyAddress  string `json:"proxyAddress,omitempty"`
	ProxyPort     int    `json:"proxyPort,omitempty"`
	ProxyLogin    string `json:"proxyLogin,omitempty"`
	ProxyPassword string `json:"proxyPassword,omitempty"`
}

type createTaskRequest struct {
	ClientKey string        `json:"clientKey"`
	Task      turnstileTask `json:"task"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type apiResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		Token string `json:"token"`
	} `json:"solution"`
}

func (r apiResponse) err() error {
	if r.ErrorID == 0 {
		return nil
	}
	return retry.Terminal(&TaskError{Code: r.ErrorCode, Description: r.ErrorDescription})
}

// Solve creates a Turnstile task and polls until it is ready.
func (s *Solver) Solve(ctx context.Context, ch Challenge) (Solution, error) {
	sol, err := s.solve(ctx, ch)
	if s.cfg.OnSolve != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(retry.Classify(err).Class)
		}
		s.cfg.OnSolve(outcome)
	}
	return sol, err
}

func (s *Solver) solve(ctx context.Context, ch Challenge) (Solution, error) {
	task := turnstileTask{Type: "TurnstileTask", WebsiteURL: ch.SiteURL, WebsiteKey: ch.SiteKey}
	if p := ch.Proxy; p != nil {
		port, err := strconv.Atoi(p.Port)
		if err != nil {
			return Solution{}, fmt.Errorf("proxy port %q: %w", p.Port, err)
		}
		task.ProxyType = p.Scheme
		task.ProxyAddress = p.Host
		task.ProxyPort = port
		task.ProxyLogin = p.Username
		task.ProxyPassword = p.Password
	}

	var created apiResponse
	if err := s.post(ctx, "/createTask", createTaskRequest{ClientKey: s.cfg.APIKey, Task: task}, &created); err != nil {
		return Solution{}, fmt.Errorf("create task: %w", err)
	}
	if err := created.err(); err != nil {
		return Solution{}, err
	}
	s.log.WithField("task", created.TaskID).Debug("captcha task created")

	deadline := time.NewTimer(s.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Solution{}, ctx.Err()
		case <-deadline.C:
			return Solution{}, retry.Transient(fmt.Errorf("task %d: %w", created.TaskID, ErrSolveTimeout))
		case <-ticker.C:
		}

		var res apiResponse
		if err := s.post(ctx, "/getTaskResult", taskResultRequest{ClientKey: s.cfg.APIKey, TaskID: created.TaskID}, &res); err != nil {
			return Solution{}, fmt.Errorf("task %d result: %w", created.TaskID, err)
		}
		if err := res.err(); err != nil {
			return Solution{}, err
		}
		if res.Status == "ready" {
			if res.Solution.Token == "" {
				return Solution{}, retry.Terminal(fmt.Errorf("task %d: ready without token", created.TaskID))
			}
			return Solution{Token: res.Solution.Token}, nil
		}
	}
}

// post sends one JSON request under the HTTP retry policy.
func (s *Solver) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.cfg.HTTP.Do(ctx, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Terminal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.http.Do(req)
		if err != nil {
			return transportErr(ctx, fmt.Errorf("capmonster %s: %w", path, err))
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return transportErr(ctx, fmt.Errorf("capmonster %s: read body: %w", path, err))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Transient(fmt.Errorf("capmonster %s: http status %d", path, resp.StatusCode))
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return retry.Terminal(fmt.Errorf("capmonster %s: decode (http %d): %w", path, resp.StatusCode, err))
		}
		return nil
	})
}

// transportErr marks a failed exchange as transient unless ctx is done.
func transportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return retry.Transient(err)
}
