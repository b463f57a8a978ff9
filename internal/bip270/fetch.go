package bip270

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/bscript"
	gocache "github.com/patrickmn/go-cache"
)

const (
	acceptPaymentRequest      = "application/bitcoinsv-paymentrequest"
	acceptPaymentACK          = "application/bitcoinsv-paymentack"
	contentTypePayment        = "application/bitcoinsv-payment"
	contentTypePaymentRequest = "application/bitcoin-paymentrequest"

	userAgent = "wallet-ledger"

	fetchRetriesDefault = 3
	cacheExpiryDefault  = 30 * time.Second
	httpTimeoutDefault  = 30 * time.Second
)

var (
	ErrUnsupportedScheme  = errors.New("payment URL scheme is not supported")
	ErrFetchFailed        = errors.New("payment request could not be fetched")
	ErrWrongContentType   = errors.New("payment URL is not served by a payment request handler")
	ErrNoPaymentURL       = errors.New("payment request carries no payment URL")
	ErrInvalidTransaction = errors.New("payment transaction hex is not a valid transaction")
	ErrPaymentRejected    = errors.New("payment was rejected")
	// ErrAckUnverifiable means the payment was posted and accepted but the
	// acknowledgement body could not be parsed. The transaction may well have
	// been broadcast; the caller must not treat this as a clean failure.
	ErrAckUnverifiable = errors.New("payment was sent but the acknowledgement could not be verified")
)

// Client fetches payment requests and submits payments. Fetched requests are
// cached briefly by URL so a user flicking between views does not hammer the
// merchant endpoint.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cache      *gocache.Cache
	retries    uint64
}

func WithHTTPClient(httpClient *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithFetchRetries(retries uint64) func(*Client) {
	return func(c *Client) {
		c.retries = retries
	}
}

func WithCacheExpiry(expiry time.Duration) func(*Client) {
	return func(c *Client) {
		c.cache = gocache.New(expiry, 2*expiry)
	}
}

func NewClient(logger *slog.Logger, opts ...func(*Client)) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: httpTimeoutDefault},
		logger:     logger.With(slog.String("module", "bip270-client")),
		cache:      gocache.New(cacheExpiryDefault, 2*cacheExpiryDefault),
		retries:    fetchRetriesDefault,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchPaymentRequest retrieves and parses the payment request behind a
// `http`, `https` or `file` URL.
func (c *Client) FetchPaymentRequest(ctx context.Context, requestURL string) (*PaymentRequest, error) {
	if cached, found := c.cache.Get(requestURL); found {
		return cached.(*PaymentRequest), nil
	}

	parsed, err := url.Parse(requestURL)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}

	var data []byte
	switch parsed.Scheme {
	case "http", "https":
		data, err = c.fetchHTTP(ctx, requestURL)
	case "file":
		data, err = os.ReadFile(parsed.Path)
		if err != nil {
			err = errors.Join(ErrFetchFailed,
				fmt.Errorf("payment URL not pointing to a valid file: %w", err))
		}
	default:
		err = errors.Join(ErrUnsupportedScheme, fmt.Errorf("scheme %q", parsed.Scheme))
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched payment request",
		slog.String("url", requestURL),
		slog.Int("bytes", len(data)))

	paymentRequest, err := ParsePaymentRequest(data)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(requestURL, paymentRequest)
	return paymentRequest, nil
}

// fetchHTTP issues the GET, retrying transport failures with exponential
// backoff. Protocol-level failures (bad status, wrong content type) are
// permanent and not retried.
func (c *Client) fetchHTTP(ctx context.Context, requestURL string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, backoff.Permanent(errors.Join(ErrFetchFailed, err))
		}
		req.Header.Set("Accept", acceptPaymentRequest)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Join(ErrFetchFailed,
				fmt.Errorf("payment URL not pointing to a valid server: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Join(ErrFetchFailed, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// The body is passed along; merchants put diagnostics there.
			return nil, backoff.Permanent(errors.Join(ErrFetchFailed,
				fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))))
		}
		if resp.Header.Get("Content-Type") != contentTypePaymentRequest {
			return nil, backoff.Permanent(errors.Join(ErrWrongContentType,
				fmt.Errorf("content type %q", resp.Header.Get("Content-Type"))))
		}
		return body, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	return backoff.RetryWithData(operation, policy)
}

// SendPayment posts the settling transaction to the request's payment URL and
// returns the merchant's acknowledgement. The refund script receives any
// merchant-side refund; memo travels with the payment.
func (c *Client) SendPayment(ctx context.Context, paymentRequest *PaymentRequest,
	transactionHex string, refundScript *bscript.Script, memo string) (*PaymentACK, error) {
	if paymentRequest.PaymentURL == nil {
		return nil, ErrNoPaymentURL
	}
	if refundScript == nil {
		return nil, errors.Join(ErrMissingField, errors.New("refund script is required"))
	}
	if _, err := bt.NewTxFromString(transactionHex); err != nil {
		return nil, errors.Join(ErrInvalidTransaction, err)
	}

	var merchantData json.RawMessage
	if paymentRequest.MerchantData != nil {
		encoded, err := json.Marshal(*paymentRequest.MerchantData)
		if err != nil {
			return nil, err
		}
		merchantData = encoded
	}

	payment := &Payment{
		MerchantData: merchantData,
		Transaction:  transactionHex,
		RefundTo:     []*Output{{Script: refundScript}},
		Memo:         &memo,
	}
	body, err := json.Marshal(payment)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *paymentRequest.PaymentURL,
		bytes.NewReader(body))
	if err != nil {
		return nil, errors.Join(ErrPaymentRejected, err)
	}
	req.Header.Set("Content-Type", contentTypePayment)
	req.Header.Set("Accept", acceptPaymentACK)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrPaymentRejected, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(ErrAckUnverifiable, err)
	}

	if resp.StatusCode != http.StatusOK {
		// A 400 carries merchant-supplied diagnostic text worth surfacing.
		// Other codes may be whole HTML documents, so only the reason is kept.
		if resp.StatusCode == http.StatusBadRequest {
			return nil, errors.Join(ErrPaymentRejected,
				fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(respBody))))
		}
		return nil, errors.Join(ErrPaymentRejected, errors.New(resp.Status))
	}

	ack, err := ParsePaymentACK(respBody)
	if err != nil {
		return nil, errors.Join(ErrAckUnverifiable, err)
	}

	if ack.Memo != nil {
		c.logger.Debug("Payment ACK received", slog.String("memo", *ack.Memo))
	}
	return ack, nil
}
