package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayswap/swapsync/pkg/types"
)

// HTTPError is a non-2xx response from the proposals API
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// AcceptRequest is the payload for accepting a proposal
type AcceptRequest struct {
	ProposalID         string `json:"proposalId"`
	UserID             string `json:"userId"`
	AutoProcessPayment bool   `json:"autoProcessPayment"`
	SwapTargetID       string `json:"swapTargetId,omitempty"`
}

// RejectRequest is the payload for rejecting a proposal
type RejectRequest struct {
	ProposalID   string `json:"proposalId"`
	UserID       string `json:"userId"`
	Reason       string `json:"reason,omitempty"`
	SwapTargetID string `json:"swapTargetId,omitempty"`
}

// ProposalStatusResponse is the answer to a status probe
type ProposalStatusResponse struct {
	Status      types.ProposalStatus `json:"status"`
	RespondedBy string               `json:"respondedBy,omitempty"`
	RespondedAt time.Time            `json:"respondedAt,omitempty"`
}

// Client is the remote proposals API. Used by one caller at a time per
// proposal; the responder owns retry policy, so every call here is a single
// shot that either succeeds or returns a typed error.
type Client interface {
	AcceptProposal(ctx context.Context, req AcceptRequest) (*types.RespondResult, error)
	RejectProposal(ctx context.Context, req RejectRequest) (*types.RespondResult, error)
	GetProposalStatus(ctx context.Context, proposalID string) (*ProposalStatusResponse, error)
}

// HTTPClient implements Client against the REST API
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a proposals API client. A nil httpClient gets a
// 15 second default timeout.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// AcceptProposal accepts a proposal on behalf of the responder
func (c *HTTPClient) AcceptProposal(ctx context.Context, req AcceptRequest) (*types.RespondResult, error) {
	var out types.RespondResult
	path := fmt.Sprintf("/v1/proposals/%s/accept", url.PathEscape(req.ProposalID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectProposal rejects a proposal on behalf of the responder
func (c *HTTPClient) RejectProposal(ctx context.Context, req RejectRequest) (*types.RespondResult, error) {
	var out types.RespondResult
	path := fmt.Sprintf("/v1/proposals/%s/reject", url.PathEscape(req.ProposalID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProposalStatus fetches the authoritative status of a proposal
func (c *HTTPClient) GetProposalStatus(ctx context.Context, proposalID string) (*ProposalStatusResponse, error) {
	var out ProposalStatusResponse
	path := fmt.Sprintf("/v1/proposals/%s/status", url.PathEscape(proposalID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Correlation-Id", correlationID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payloadBytes, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payloadBytes) == 0 {
			return nil
		}
		return json.Unmarshal(payloadBytes, out)
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payloadBytes, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

func correlationID() string {
	return "swapsync_" + uuid.New().String()
}
