package crpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://ismp.crpt.ru"
	CreateDocumentPath = "/api/v3/lk/documents/create"
)

// Client envia documentos para a API da CRPT. Cada chamada de rede consome
// exatamente uma permissão do limiter injetado.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    domain.Acquirer
	log        logrus.FieldLogger

	// slowWait é a espera a partir da qual o cliente avisa no log que está sendo segurado.
	slowWait time.Duration
	waitWarn *rate.Sometimes
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = l }
}

func WithSlowWait(d time.Duration) ClientOption {
	return func(c *Client) { c.slowWait = d }
}

func NewClient(limiter domain.Acquirer, opts ...ClientOption) (*Client, error) {
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		log:        discard,
		slowWait:   time.Second,
		waitWarn:   &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateDocument espera uma permissão e envia o documento assinado.
// A request é montada antes da espera, então um documento inválido não gasta permissão.
func (c *Client) CreateDocument(ctx context.Context, doc *Document, signature string) error {
	if doc == nil {
		return &APIError{Stage: StageBeforeRequest, Err: errors.New("document is required")}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return &APIError{Stage: StageBeforeRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CreateDocumentPath, bytes.NewReader(body))
	if err != nil {
		return &APIError{Stage: StageBeforeRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Signature", signature)

	start := time.Now()
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("waiting for permit: %w", err)
	}
	if waited := time.Since(start); waited >= c.slowWait {
		c.waitWarn.Do(func() {
			c.log.WithField("waited", waited).Warn("document submission held by rate limiter")
		})
	}

	log := c.log.WithField("doc_id", doc.DocID)
	log.Debug("submitting document")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Stage: StageRequest, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	resBody, err := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return &APIError{Stage: StageAfterRequest, StatusCode: res.StatusCode, Body: resBody}
	}
	if err != nil {
		return &APIError{Stage: StageAfterRequest, StatusCode: res.StatusCode, Err: err}
	}

	log.WithField("status", res.StatusCode).Debug("document accepted")
	return nil
}
