package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/transport"
	"github.com/ValentinKolb/dQRY/rpc/transport/base"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	queryURLs  []string
	client     *http.Client
	counter    atomic.Uint32
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	queryURLs := make([]string, len(config.Transport.Endpoints))
	for i, endpoint := range config.Transport.Endpoints {
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return err
		}
		queryURLs[i] = parsed.JoinPath(QueryPath).String()
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	t.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: max(10, config.Transport.ConnectionsPerEndpoint),
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.queryURLs = queryURLs
	t.retryCount = max(1, config.Transport.RetryCount)
	return nil
}

func (t *httpClientTransport) Send(req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	var backoff base.Backoff
	var lastErr error
	for i := 0; i < t.retryCount; i++ {
		// Select the next server via round-robin
		target := t.queryURLs[t.counter.Add(1)%uint32(len(t.queryURLs))]

		data, retry, err := t.post(target, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, t.retryCount, err)

		if i < t.retryCount-1 {
			time.Sleep(backoff.Next())
		}
	}
	return nil, lastErr
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.queryURLs = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends one request. retry is true only if the request cannot have reached
// the handler: the connection could not be established or a proxy answered 502/503.
func (t *httpClientTransport) post(target string, req []byte) (data []byte, retry bool, err error) {
	httpResponse, err := t.client.Post(target, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		var opErr *net.OpError
		return nil, errors.As(err, &opErr) && opErr.Op == "dial", err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Warningf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		retry = httpResponse.StatusCode == http.StatusBadGateway || httpResponse.StatusCode == http.StatusServiceUnavailable
		return nil, retry, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	data, err = io.ReadAll(httpResponse.Body)
	return data, false, err
}
