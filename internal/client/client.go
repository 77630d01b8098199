// Package client is the transport for engagement calls against the hubs repository.
// Every call takes an explicit Credential; the package holds no session state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader  = "X-Request-ID"
	maxResponseBytes = 1 << 20
	defaultTimeout   = 10 * time.Second
)

var (
	errMissingBaseURL    = errors.New("client: base url required")
	errMissingCredential = errors.New("credential token required")
)

// Action names the engagement operation a Request performs.
type Action string

const (
	ActionVote          Action = "vote"
	ActionBookmark      Action = "bookmark"
	ActionView          Action = "view"
	ActionStats         Action = "stats"
	ActionListBookmarks Action = "list_bookmarks"
	ActionListResources Action = "list_resources"
	ActionListAnswers   Action = "list_answers"
)

// Credential is the bearer token and identity of the acting user.
type Credential struct {
	Token  string
	UserID string
}

// Payload carries action-specific request data.
type Payload struct {
	Direction content.Direction
}

// Request is the single shape every engagement call is normalized into.
type Request struct {
	Kind    content.Kind
	ID      content.ItemID
	Action  Action
	Payload Payload
}

// Target returns the (kind, id) key addressed by the request.
func (r Request) Target() content.Target {
	return content.Target{Kind: r.Kind, ID: r.ID}
}

// Response holds the decoded result of a Request. Only the field matching the action is set.
type Response struct {
	RequestID string
	Vote      *VoteResult
	Bookmark  *BookmarkResult
	Stats     *Stats
	Bookmarks []BookmarkEntry
	Resources []ResourceEntry
	Answers   []AnswerEntry
}

// VoteResult is the repository's state after a vote cast.
type VoteResult struct {
	Target    content.Target
	Net       int64
	Direction content.Direction
	Version   int64
}

// BookmarkResult is the repository's state after a bookmark toggle.
type BookmarkResult struct {
	Target  content.Target
	Status  content.BookmarkStatus
	Version int64
}

// Stats are the aggregate engagement totals of a collection.
type Stats struct {
	CollectionID  content.ItemID
	ResourceCount int64
	TotalVotes    int64
	TotalViews    int64
}

// BookmarkEntry is a saved item with its denormalized display fields.
type BookmarkEntry struct {
	Target         content.Target
	OwnerID        int64
	Title          string
	URL            string
	MediaRef       string
	SavedAtSeconds int64
	Version        int64
}

// ResourceEntry is a listed resource with its net votes and the caller's direction.
// Version is the repository's write counter for the resource; higher is newer.
type ResourceEntry struct {
	Item     content.Item
	Votes    int64
	UserVote content.Direction
	Version  int64
}

// AnswerEntry is a listed answer. Its Item is owned by the question it answers.
type AnswerEntry struct {
	Item     content.Item
	Votes    int64
	UserVote content.Direction
	Version  int64
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
	RequestIDs func() string
}

// Client sends engagement requests. It performs no retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
	requestIDs func() string
}

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	rawBase := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBase == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestIDs := cfg.RequestIDs
	if requestIDs == nil {
		requestIDs = newRequestID
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
		requestIDs: requestIDs,
	}, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Do sends a normalized request and decodes the result for its action.
func (c *Client) Do(ctx context.Context, cred Credential, request Request) (Response, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return Response{}, &Error{Kind: KindUnauthorized, Action: request.Action, Reason: "missing_credential", Err: errMissingCredential}
	}

	route, err := buildRoute(request)
	if err != nil {
		c.logger.Error("malformed engagement request",
			zap.String("action", string(request.Action)),
			zap.String("kind", request.Kind.String()),
			zap.Int64("id", request.ID.Int64()),
			zap.Error(err))
		return Response{}, &Error{Kind: KindValidation, Action: request.Action, Reason: "invalid_request", Err: err}
	}

	requestID := c.requestIDs()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if route.body != nil {
		encoded, err := json.Marshal(route.body)
		if err != nil {
			return Response{}, &Error{Kind: KindValidation, Action: request.Action, RequestID: requestID, Reason: "encode_failed", Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL.JoinPath(route.path)
	endpoint.RawQuery = route.query.Encode()
	httpRequest, err := http.NewRequestWithContext(ctx, route.method, endpoint.String(), body)
	if err != nil {
		return Response{}, &Error{Kind: KindValidation, Action: request.Action, RequestID: requestID, Reason: "invalid_request", Err: err}
	}
	httpRequest.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cred.Token))
	httpRequest.Header.Set(requestIDHeader, requestID)
	httpRequest.Header.Set("Accept", "application/json")
	if route.body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		c.logger.Warn("engagement request failed",
			zap.String("action", string(request.Action)),
			zap.String("request_id", requestID),
			zap.Error(err))
		return Response{}, &Error{Kind: KindTransient, Action: request.Action, RequestID: requestID, Reason: "transport_failed", Err: err}
	}
	defer httpResponse.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBytes))
	if err != nil {
		return Response{}, &Error{Kind: KindTransient, Action: request.Action, Status: httpResponse.StatusCode, RequestID: requestID, Reason: "read_failed", Err: err}
	}

	if httpResponse.StatusCode >= http.StatusBadRequest {
		return Response{}, c.statusError(request, requestID, httpResponse.StatusCode, raw)
	}

	response, err := decodeResponse(request, raw)
	if err != nil {
		c.logger.Warn("undecodable engagement response",
			zap.String("action", string(request.Action)),
			zap.String("request_id", requestID),
			zap.Error(err))
		return Response{}, &Error{Kind: KindTransient, Action: request.Action, Status: httpResponse.StatusCode, RequestID: requestID, Reason: "decode_failed", Err: err}
	}
	response.RequestID = requestID
	return response, nil
}

func (c *Client) statusError(request Request, requestID string, status int, raw []byte) error {
	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)

	clientErr := &Error{
		Kind:      classifyStatus(status),
		Action:    request.Action,
		Status:    status,
		Reason:    payload.Error,
		Code:      payload.Code,
		RequestID: requestID,
	}
	if clientErr.Kind == KindValidation {
		c.logger.Error("engagement request rejected as invalid",
			zap.String("action", string(request.Action)),
			zap.String("target", request.Target().String()),
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("reason", payload.Error))
	}
	return clientErr
}

// CastVote sends an up or down vote for target.
func (c *Client) CastVote(ctx context.Context, cred Credential, target content.Target, direction content.Direction) (VoteResult, error) {
	response, err := c.Do(ctx, cred, Request{Kind: target.Kind, ID: target.ID, Action: ActionVote, Payload: Payload{Direction: direction}})
	if err != nil {
		return VoteResult{}, err
	}
	return *response.Vote, nil
}

// ToggleBookmark flips the caller's bookmark on target.
func (c *Client) ToggleBookmark(ctx context.Context, cred Credential, target content.Target) (BookmarkResult, error) {
	response, err := c.Do(ctx, cred, Request{Kind: target.Kind, ID: target.ID, Action: ActionBookmark})
	if err != nil {
		return BookmarkResult{}, err
	}
	return *response.Bookmark, nil
}

// RecordView sends one view event for a collection or resource.
func (c *Client) RecordView(ctx context.Context, cred Credential, scope content.Target) error {
	_, err := c.Do(ctx, cred, Request{Kind: scope.Kind, ID: scope.ID, Action: ActionView})
	return err
}

// GetStats fetches the aggregate totals of a collection.
func (c *Client) GetStats(ctx context.Context, cred Credential, collectionID content.ItemID) (Stats, error) {
	response, err := c.Do(ctx, cred, Request{Kind: content.KindCollection, ID: collectionID, Action: ActionStats})
	if err != nil {
		return Stats{}, err
	}
	return *response.Stats, nil
}

// ListBookmarks lists the caller's bookmarks of one kind.
func (c *Client) ListBookmarks(ctx context.Context, cred Credential, kind content.Kind) ([]BookmarkEntry, error) {
	response, err := c.Do(ctx, cred, Request{Kind: kind, Action: ActionListBookmarks})
	if err != nil {
		return nil, err
	}
	return response.Bookmarks, nil
}

// ListResources lists a collection's resources in repository arrival order.
func (c *Client) ListResources(ctx context.Context, cred Credential, collectionID content.ItemID) ([]ResourceEntry, error) {
	response, err := c.Do(ctx, cred, Request{Kind: content.KindCollection, ID: collectionID, Action: ActionListResources})
	if err != nil {
		return nil, err
	}
	return response.Resources, nil
}

// ListAnswers lists the answers to a question, newest first.
func (c *Client) ListAnswers(ctx context.Context, cred Credential, questionID content.ItemID) ([]AnswerEntry, error) {
	response, err := c.Do(ctx, cred, Request{Kind: content.KindAnswer, ID: questionID, Action: ActionListAnswers})
	if err != nil {
		return nil, err
	}
	return response.Answers, nil
}
