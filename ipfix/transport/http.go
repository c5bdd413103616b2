// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
)

// maxResponseMessage is the maximum size of the response body kept in
// a session record.
const maxResponseMessage = 256

type httpTransport struct {
	r      *reporter.Reporter
	d      Dependencies
	url    string
	config Configuration
	client *http.Client

	metrics struct {
		attempts *reporter.CounterVec
	}
}

func newHTTP(r *reporter.Reporter, url string, config Configuration, dependencies Dependencies) (*httpTransport, error) {
	tlsConfig, err := config.TLS.MakeTLSConfig()
	if err != nil {
		return nil, err
	}
	t := httpTransport{
		r:      r,
		d:      dependencies,
		url:    url,
		config: config,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
			Timeout: config.Timeout,
		},
	}
	t.metrics.attempts = r.CounterVec(
		reporter.CounterOpts{
			Name: "http_attempts_total",
			Help: "Number of HTTP attempts.",
		},
		[]string{"status"},
	)
	return &t, nil
}

func (t *httpTransport) Type() Kind {
	return KindHTTP
}

// Send posts the payload. Non-2xx answers and network errors are
// retried RepeatsNum times. The session record reflects the last
// attempt.
func (t *httpTransport) Send(ctx context.Context, packet Packet) (session.Record, error) {
	record := session.Record{
		Name: packet.Name,
		Time: t.d.Clock.Now(),
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.config.RepeatsWaitTime), uint64(t.config.RepeatsNum)),
		ctx)
	err := backoff.Retry(func() error {
		record.HTTPStatusCode = 0
		record.HTTPResponseMsg = ""
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(packet.Payload))
		if err != nil {
			record.TransportStatus = err.Error()
			return backoff.Permanent(err)
		}
		for name, value := range t.config.Headers {
			req.Header.Set(name, value)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Ipfix-Name", packet.Name)
		resp, err := t.client.Do(req)
		if err != nil {
			t.metrics.attempts.WithLabelValues("error").Inc()
			record.TransportStatus = err.Error()
			return err
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseMessage))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		record.HTTPStatusCode = resp.StatusCode
		record.HTTPResponseMsg = strings.TrimSpace(string(body))
		if record.HTTPResponseMsg == "" {
			record.HTTPResponseMsg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			t.metrics.attempts.WithLabelValues("failed").Inc()
			record.TransportStatus = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
			return fmt.Errorf("unexpected status code %d", resp.StatusCode)
		}
		t.metrics.attempts.WithLabelValues("success").Inc()
		record.TransportStatus = "uploaded"
		return nil
	}, b)
	if err != nil {
		record.Status = session.StatusFailed
		return record, fmt.Errorf("cannot post %q to %s: %w: %w", packet.Name, t.url, ErrTransport, err)
	}
	record.Status = session.StatusSuccess
	record.BytesUploaded = len(packet.Payload)
	record.TempRecordsUploaded = packet.TemplateRecords
	record.DataRecordsUploaded = packet.DataRecords
	return record, nil
}

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
