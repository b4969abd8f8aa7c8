package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/headlight-network/headlight/x/lightclient"
)

// Client submits proof requests to the remote gateway REST API.
type Client struct {
	baseURL     *url.URL
	bearerToken string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient constructs a gateway client for the given base URL.
func NewClient(rawURL, bearerToken string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("gateway endpoint is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := log.With().Str("component", "gateway-client").Logger()

	client := &Client{
		baseURL:     parsed,
		bearerToken: bearerToken,
		httpClient:  httpClient,
		log:         logger,
	}

	logger.Info().
		Str("endpoint", rawURL).
		Dur("timeout", httpClient.Timeout).
		Msg("gateway client initialized")

	return client, nil
}

type requestCallBody struct {
	RequestID       string `json:"request_id"`
	FunctionID      string `json:"function_id"`
	Input           string `json:"input"`
	CallbackTarget  string `json:"callback_target"`
	CallbackPayload string `json:"callback_payload"`
	GasLimit        uint64 `json:"gas_limit"`
	Payment         string `json:"payment"`
}

type requestCallResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	RequestID string  `json:"request_id"`
	Error     *string `json:"error"`
}

func (r requestCallResponse) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return r.Message
}

// RequestCall posts an asynchronous proof request.
func (c *Client) RequestCall(
	ctx context.Context,
	functionID common.Hash,
	input []byte,
	callback lightclient.CallbackDescriptor,
	gasLimit uint64,
	payment *big.Int,
) error {
	endpoint := c.buildURL("request")

	if payment == nil {
		payment = new(big.Int)
	}

	reqBody := requestCallBody{
		RequestID:       uuid.NewString(),
		FunctionID:      functionID.Hex(),
		Input:           hexutil.Encode(input),
		CallbackTarget:  string(callback.Target),
		CallbackPayload: hexutil.Encode(callback.Payload),
		GasLimit:        gasLimit,
		Payment:         payment.String(),
	}

	c.log.Info().
		Str("request_id", reqBody.RequestID).
		Str("function_id", reqBody.FunctionID).
		Str("callback_target", reqBody.CallbackTarget).
		Int("input_bytes", len(input)).
		Uint64("gas_limit", gasLimit).
		Str("payment_wei", reqBody.Payment).
		Msg("submitting proof request")

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal proof request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("proof request failed")
		return fmt.Errorf("post proof request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("response", string(msg)).
			Msg("gateway returned error response")
		return fmt.Errorf("gateway returned %s: %s", res.Status, string(msg))
	}

	var ack requestCallResponse
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("gateway rejected request: %s", ack.errorMessage())
	}

	c.log.Info().
		Str("request_id", reqBody.RequestID).
		Str("gateway_request_id", ack.RequestID).
		Msg("proof request accepted")

	return nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}
