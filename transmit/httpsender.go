// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package transmit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	"github.com/openmonitor/telemetry-channel/telemetry"
)

// EncodeFunc serializes a batch for the wire. The default CBOR-encodes the
// event slice; deployments with a collector-specific schema supply their own.
type EncodeFunc func(*telemetry.Batch) ([]byte, error)

func defaultEncode(batch *telemetry.Batch) ([]byte, error) {
	return cbor.Marshal(batch.Events())
}

// HTTPSender delivers batches with a single POST per attempt and maps the
// response status onto an outcome.
type HTTPSender struct {
	client   *http.Client
	endpoint string
	encode   EncodeFunc
}

// Compile time check that HTTPSender satisfies Sender.
var _ Sender = (*HTTPSender)(nil)

// NewHTTPSender creates a sender posting to endpoint. client and encode may
// be nil for the defaults.
func NewHTTPSender(endpoint string, client *http.Client, encode EncodeFunc) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if encode == nil {
		encode = defaultEncode
	}
	return &HTTPSender{
		client:   client,
		endpoint: endpoint,
		encode:   encode,
	}
}

// Send performs one delivery attempt.
func (s *HTTPSender) Send(ctx context.Context, batch *telemetry.Batch) Outcome {
	payload, err := s.encode(batch)
	if err != nil {
		// A batch that cannot be serialized will never succeed.
		log.Errorf("Cannot encode batch %s: %v", batch.ID(), err)
		return Outcome{Kind: PermanentFailure}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		bytes.NewReader(payload))
	if err != nil {
		log.Errorf("Cannot build request for batch %s: %v", batch.ID(), err)
		return Outcome{Kind: PermanentFailure}
	}
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{Kind: RetryableFailure}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return outcomeForStatus(resp.StatusCode, resp.Header)
}

// statusTooManyRequestsOverExtendedTime is the non-standard throttling status
// some collectors emit in addition to 429.
const statusTooManyRequestsOverExtendedTime = 439

func outcomeForStatus(status int, header http.Header) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Outcome{Kind: Delivered}
	case status == http.StatusTooManyRequests ||
		status == statusTooManyRequestsOverExtendedTime:
		return Outcome{Kind: Throttled, RetryAfter: parseRetryAfter(header)}
	case status == http.StatusRequestTimeout ||
		status == http.StatusInternalServerError ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout:
		return Outcome{Kind: RetryableFailure}
	default:
		return Outcome{Kind: PermanentFailure}
	}
}

// parseRetryAfter reads a delay-seconds Retry-After header. Absent or
// unparsable values yield zero, leaving the cool-down to the local policy.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
