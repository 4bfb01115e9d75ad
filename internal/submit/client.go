package submit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/capture"
	"github.com/precoposto/precoposto/internal/httputil"
	"github.com/precoposto/precoposto/internal/metrics"
	"github.com/precoposto/precoposto/internal/models"
	"github.com/precoposto/precoposto/internal/state"
)

// ErrIncomplete reports a period with stations whose prices are not filled
// in; the submission is not attempted.
var ErrIncomplete = errors.New("preços incompletos")

// Client posts submission payloads to the webhook with retry on transient
// failures. Any non-2xx response is a failed submission.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient returns a webhook client with standard timeouts.
func NewClient(log zerolog.Logger) *Client {
	return &Client{httpClient: httputil.NewClient(), log: log}
}

// Send posts the payload as JSON. Rate limiting and server errors are
// retried with exponential backoff; other non-2xx statuses fail immediately.
func (c *Client) Send(url string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	operation := func() error {
		resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(operation, bo)
}

// Submitter runs the full submission flow for a period: completeness check,
// webhook resolution, delivery, and the post-success state transition.
type Submitter struct {
	state  *state.Service
	client *Client
	orch   *capture.Orchestrator
	log    zerolog.Logger
	now    func() time.Time
}

// NewSubmitter wires the flow. now may be nil, defaulting to time.Now.
func NewSubmitter(st *state.Service, client *Client, orch *capture.Orchestrator, now func() time.Time, log zerolog.Logger) *Submitter {
	if now == nil {
		now = time.Now
	}
	return &Submitter{state: st, client: client, orch: orch, log: log, now: now}
}

// Submit sends the period to the resolved webhook. On failure local state is
// left unsubmitted so a retry is safe. On a successful morning submission the
// afternoon is prefilled and the morning photos are purged.
func (s *Submitter) Submit(period models.Period) error {
	if !period.Valid() {
		return fmt.Errorf("unknown period %q", period)
	}

	st := s.state.Load()
	if missing := IncompleteStations(st, period); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	sentAt := s.now()
	payload := BuildPayload(st, period, sentAt)
	url := s.state.WebhookURL()

	if err := s.client.Send(url, payload); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(period), "error").Inc()
		s.log.Warn().Err(err).Str("period", string(period)).Msg("submission failed")
		return err
	}
	metrics.SubmissionsTotal.WithLabelValues(string(period), "ok").Inc()
	s.log.Info().Str("period", string(period)).Int("fields", len(payload)).Msg("submission delivered")

	if err := s.state.CompleteSubmission(period, sentAt); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if period == models.PeriodMorning {
		s.orch.PurgePeriod(models.PeriodMorning)
	}
	return nil
}
