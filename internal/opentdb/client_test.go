package opentdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-quiz-service/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func respond(status int, body string) roundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	}
}

func newTestClient(rt http.RoundTripper) *Client {
	return NewClient(Options{
		BaseURL:    "http://opentdb.test",
		HTTPClient: &http.Client{Transport: rt},
	})
}

const tenQuestions = `{"response_code":0,"results":[
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Qu&#039;est-ce?","correct_answer":"Oui","incorrect_answers":["Non","Peut-&ecirc;tre","Jamais"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q2","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q3","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q4","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q5","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q6","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q7","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q8","correct_answer":"A","incorrect_answers":["B","C","D"]},
{"type":"boolean","difficulty":"easy","category":"General Knowledge","question":"Q9","correct_answer":"True","incorrect_answers":["False"]},
{"type":"multiple","difficulty":"easy","category":"General Knowledge","question":"Q10","correct_answer":"A","incorrect_answers":["B","C","D"]}
]}`

func TestFetchQuestionsSendsAmountAndCategory(t *testing.T) {
	var seen *http.Request
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return respond(http.StatusOK, tenQuestions)(r)
	}))

	records, err := client.FetchQuestions(context.Background(), 10, 9)
	require.NoError(t, err)
	require.Len(t, records, 10)

	assert.Equal(t, "/api.php", seen.URL.Path)
	assert.Equal(t, "10", seen.URL.Query().Get("amount"))
	assert.Equal(t, "9", seen.URL.Query().Get("category"))
	assert.Equal(t, "Qu&#039;est-ce?", records[0].Question, "client must not decode; normalization happens later")
	assert.Equal(t, "Qu'est-ce?", domain.Normalize(records[0].Question))
	assert.Len(t, records[8].IncorrectAnswers, 1)
}

func TestFetchQuestionsUsesDefaultAmountAndOmitsCategory(t *testing.T) {
	var query map[string][]string
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		query = r.URL.Query()
		return respond(http.StatusOK, tenQuestions)(r)
	}))

	_, err := client.FetchQuestions(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, query["amount"])
	assert.NotContains(t, query, "category")
}

func TestFetchQuestionsSendsDifficulty(t *testing.T) {
	var difficulty string
	client := NewClient(Options{
		BaseURL:    "http://opentdb.test",
		Difficulty: "hard",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			difficulty = r.URL.Query().Get("difficulty")
			return respond(http.StatusOK, tenQuestions)(r)
		})},
	})

	_, err := client.FetchQuestions(context.Background(), 5, 12)
	require.NoError(t, err)
	assert.Equal(t, "hard", difficulty)
}

func TestFetchQuestionsRateLimited(t *testing.T) {
	client := newTestClient(respond(http.StatusTooManyRequests, `{"response_code":5,"results":[]}`))

	_, err := client.FetchQuestions(context.Background(), 10, 9)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.NotErrorIs(t, err, domain.ErrFetchFailed)
}

func TestFetchQuestionsRateLimitedResponseCode(t *testing.T) {
	client := newTestClient(respond(http.StatusOK, `{"response_code":5,"results":[]}`))

	_, err := client.FetchQuestions(context.Background(), 10, 9)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestFetchQuestionsNonOKStatus(t *testing.T) {
	client := newTestClient(respond(http.StatusBadGateway, ""))

	_, err := client.FetchQuestions(context.Background(), 5, 0)
	require.ErrorIs(t, err, domain.ErrFetchFailed)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusBadGateway, fetchErr.Status)
}

func TestFetchQuestionsTransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, cause
	}))

	_, err := client.FetchQuestions(context.Background(), 5, 0)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
}

func TestFetchQuestionsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not-json"},
		{name: "results missing", body: `{"response_code":0}`},
		{name: "results null", body: `{"response_code":0,"results":null}`},
		{name: "results not a list", body: `{"response_code":0,"results":{"question":"x"}}`},
		{name: "results empty", body: `{"response_code":0,"results":[]}`},
		{name: "no results code", body: `{"response_code":1,"results":[]}`},
		{name: "missing correct answer", body: `{"response_code":0,"results":[{"question":"Q","incorrect_answers":["a"]}]}`},
		{name: "missing question", body: `{"response_code":0,"results":[{"correct_answer":"A","incorrect_answers":["a"]}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(respond(http.StatusOK, tc.body))
			_, err := client.FetchQuestions(context.Background(), 3, 9)
			assert.ErrorIs(t, err, domain.ErrInvalidResponse)
		})
	}
}

func TestFetchQuestionsWaitsForThrottle(t *testing.T) {
	client := NewClient(Options{
		BaseURL:       "http://opentdb.test",
		ThrottleDelay: 40 * time.Millisecond,
		HTTPClient:    &http.Client{Transport: respond(http.StatusOK, tenQuestions)},
	})

	start := time.Now()
	_, err := client.FetchQuestions(context.Background(), 10, 9)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFetchQuestionsThrottleIsCancellable(t *testing.T) {
	var calls int32
	client := NewClient(Options{
		BaseURL:       "http://opentdb.test",
		ThrottleDelay: time.Hour,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return respond(http.StatusOK, tenQuestions)(r)
		})},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchQuestions(ctx, 10, 9)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&calls), "no request should be sent once the wait is cancelled")
}

func TestFetchCategoriesCoalescesAndMemoizes(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return respond(http.StatusOK, `{"trivia_categories":[{"id":9,"name":"General Knowledge"},{"id":10,"name":"Entertainment: Books"}]}`)(r)
	}))

	var wg sync.WaitGroup
	results := make([][]domain.Category, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cats, err := client.FetchCategories(context.Background())
			assert.NoError(t, err)
			results[i] = cats
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	cats, err := client.FetchCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{{ID: 9, Name: "General Knowledge"}, {ID: 10, Name: "Entertainment: Books"}}, cats)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Len(t, r, 2)
	}
}

func TestFetchCategoriesRateLimited(t *testing.T) {
	client := newTestClient(respond(http.StatusTooManyRequests, ""))

	_, err := client.FetchCategories(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
