package opentdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
	"trivia-quiz-service/internal/validation"
)

const (
	DefaultBaseURL       = "https://opentdb.com"
	DefaultAmount        = 10
	DefaultThrottleDelay = time.Second

	maxBodyBytes = 1 << 20
)

// OpenTDB response codes carried in the JSON body.
const (
	codeSuccess        = 0
	codeNoResults      = 1
	codeInvalidParam   = 2
	codeTokenNotFound  = 3
	codeTokenEmpty     = 4
	codeRateLimitedAPI = 5
)

// Options configures a Client. A zero ThrottleDelay disables the pre-request wait.
type Options struct {
	BaseURL       string
	Amount        int
	Difficulty    string
	ThrottleDelay time.Duration
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// Client talks to the OpenTDB question and category endpoints.
// Every question request waits ThrottleDelay first to stay under the source's rate limit.
type Client struct {
	baseURL    string
	amount     int
	difficulty string
	throttle   time.Duration
	http       *http.Client
	logger     logging.Logger
	validate   *validation.Validator

	sf         singleflight.Group
	mu         sync.RWMutex
	categories []domain.Category
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	amount := opts.Amount
	if amount <= 0 {
		amount = DefaultAmount
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL:    base,
		amount:     amount,
		difficulty: opts.Difficulty,
		throttle:   opts.ThrottleDelay,
		http:       httpClient,
		logger:     logger.With("component", "opentdb"),
		validate:   validation.New(),
	}
}

type questionsResponse struct {
	ResponseCode int             `json:"response_code"`
	Results      json.RawMessage `json:"results"`
}

type categoriesResponse struct {
	TriviaCategories []domain.Category `json:"trivia_categories"`
}

// FetchQuestions returns a validated batch of raw question records.
// categoryID 0 means any category. amount <= 0 uses the configured default.
func (c *Client) FetchQuestions(ctx context.Context, amount int, categoryID int) ([]domain.QuestionRecord, error) {
	if amount <= 0 {
		amount = c.amount
	}

	if err := c.wait(ctx); err != nil {
		return nil, domain.NewFetchError("fetch questions", 0, err)
	}

	params := url.Values{}
	params.Set("amount", strconv.Itoa(amount))
	if categoryID > 0 {
		params.Set("category", strconv.Itoa(categoryID))
	}
	if c.difficulty != "" {
		params.Set("difficulty", c.difficulty)
	}

	body, err := c.get(ctx, "fetch questions", c.baseURL+"/api.php?"+params.Encode())
	if err != nil {
		c.logger.WarnContext(ctx, "question fetch failed", "category", categoryID, "error", err)
		return nil, err
	}

	records, err := c.decodeQuestions(body)
	if err != nil {
		c.logger.WarnContext(ctx, "question payload rejected", "category", categoryID, "error", err)
		return nil, err
	}
	c.logger.DebugContext(ctx, "questions fetched", "category", categoryID, "count", len(records))
	return records, nil
}

// FetchCategories returns the category list. Concurrent calls share one request and the
// first successful result is kept for the lifetime of the client.
func (c *Client) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	c.mu.RLock()
	if c.categories != nil {
		cats := append([]domain.Category(nil), c.categories...)
		c.mu.RUnlock()
		return cats, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("categories", func() (interface{}, error) {
		body, err := c.get(ctx, "fetch categories", c.baseURL+"/api_category.php")
		if err != nil {
			return nil, err
		}
		var payload categoriesResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode categories: %v", domain.ErrInvalidResponse, err)
		}
		if len(payload.TriviaCategories) == 0 {
			return nil, fmt.Errorf("%w: empty category list", domain.ErrInvalidResponse)
		}

		c.mu.Lock()
		c.categories = payload.TriviaCategories
		c.mu.Unlock()
		return payload.TriviaCategories, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Category(nil), result.([]domain.Category)...), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.throttle <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.throttle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) get(ctx context.Context, op, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewFetchError(op, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewFetchError(op, resp.StatusCode, err)
	}
	return body, nil
}

func (c *Client) decodeQuestions(body []byte) ([]domain.QuestionRecord, error) {
	var payload questionsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", domain.ErrInvalidResponse, err)
	}

	switch payload.ResponseCode {
	case codeSuccess:
	case codeRateLimitedAPI:
		return nil, domain.ErrRateLimited
	case codeTokenNotFound, codeTokenEmpty:
		return nil, domain.NewFetchError("fetch questions", 0, fmt.Errorf("session token response_code=%d", payload.ResponseCode))
	case codeNoResults, codeInvalidParam:
		return nil, fmt.Errorf("%w: response_code=%d", domain.ErrInvalidResponse, payload.ResponseCode)
	default:
		return nil, fmt.Errorf("%w: unknown response_code=%d", domain.ErrInvalidResponse, payload.ResponseCode)
	}

	raw := bytes.TrimSpace(payload.Results)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: results missing", domain.ErrInvalidResponse)
	}
	var records []domain.QuestionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: results is not a list of questions: %v", domain.ErrInvalidResponse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: results empty", domain.ErrInvalidResponse)
	}
	for i := range records {
		if err := c.validate.Struct(records[i]); err != nil {
			return nil, fmt.Errorf("%w: result %d: %v", domain.ErrInvalidResponse, i, err)
		}
	}
	return records, nil
}
