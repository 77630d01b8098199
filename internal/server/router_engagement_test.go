package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/auth"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "router-secret"
	testIssuer        = "hubs-api"
)

type stubEngagementService struct {
	castVote       func(userID engagement.UserID, target content.Target, direction content.Direction) (engagement.VoteOutcome, error)
	toggleBookmark func(userID engagement.UserID, target content.Target) (engagement.BookmarkOutcome, error)
	recordView     func(scope content.Target) error
	stats          func(collectionID content.ItemID) (engagement.CollectionStats, error)
	resources      func(userID engagement.UserID, collectionID content.ItemID) ([]engagement.ResourceEntry, error)
	answers        func(userID engagement.UserID, questionID content.ItemID) ([]engagement.AnswerEntry, error)
	bookmarks      func(userID engagement.UserID, kind content.Kind) ([]engagement.BookmarkEntry, error)
}

func (s *stubEngagementService) CastVote(_ context.Context, userID engagement.UserID, target content.Target, direction content.Direction) (engagement.VoteOutcome, error) {
	return s.castVote(userID, target, direction)
}

func (s *stubEngagementService) ToggleBookmark(_ context.Context, userID engagement.UserID, target content.Target) (engagement.BookmarkOutcome, error) {
	return s.toggleBookmark(userID, target)
}

func (s *stubEngagementService) RecordView(_ context.Context, scope content.Target) error {
	return s.recordView(scope)
}

func (s *stubEngagementService) CollectionStats(_ context.Context, collectionID content.ItemID) (engagement.CollectionStats, error) {
	return s.stats(collectionID)
}

func (s *stubEngagementService) ListResources(_ context.Context, userID engagement.UserID, collectionID content.ItemID) ([]engagement.ResourceEntry, error) {
	return s.resources(userID, collectionID)
}

func (s *stubEngagementService) ListAnswers(_ context.Context, userID engagement.UserID, questionID content.ItemID) ([]engagement.AnswerEntry, error) {
	return s.answers(userID, questionID)
}

func (s *stubEngagementService) ListBookmarks(_ context.Context, userID engagement.UserID, kind content.Kind) ([]engagement.BookmarkEntry, error) {
	return s.bookmarks(userID, kind)
}

func newTestRouter(t *testing.T, service EngagementService) (http.Handler, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	issued, err := issuer.Issue("alice", "Alice")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		Engagement:       service,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build router: %v", err)
	}
	return handler, issued.Token
}

func performJSON(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{Engagement: &stubEngagementService{}}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing validator error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{SessionValidator: stubSessionValidator{}}); !errors.Is(err, errMissingEngagement) {
		t.Fatalf("expected missing engagement error, got %v", err)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	handler, _ := newTestRouter(t, &stubEngagementService{})
	recorder := performJSON(handler, http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if recorder.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	handler, _ := newTestRouter(t, &stubEngagementService{})
	recorder := performJSON(handler, http.MethodPost, "/engagement/votes", "", `{"kind":"resource","id":1,"direction":"up"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

func TestCastVoteEndpoint(t *testing.T) {
	var captured struct {
		userID    engagement.UserID
		target    content.Target
		direction content.Direction
	}
	service := &stubEngagementService{
		castVote: func(userID engagement.UserID, target content.Target, direction content.Direction) (engagement.VoteOutcome, error) {
			captured.userID, captured.target, captured.direction = userID, target, direction
			return engagement.VoteOutcome{Target: target, Net: 4, Direction: content.DirectionNone, Version: 12}, nil
		},
	}
	handler, token := newTestRouter(t, service)

	recorder := performJSON(handler, http.MethodPost, "/engagement/votes", token, `{"kind":"Resource","id":7,"direction":"up"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if captured.userID != "alice" || captured.target != (content.Target{Kind: content.KindResource, ID: 7}) || captured.direction != content.DirectionUp {
		t.Fatalf("unexpected service call %+v", captured)
	}
	expected := `{"kind":"resource","id":7,"votes":4,"user_vote":null,"version":12}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestCastVoteEndpointValidation(t *testing.T) {
	handler, token := newTestRouter(t, &stubEngagementService{})

	testCases := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "malformed json", body: `{"kind":`, wantError: "invalid_request"},
		{name: "unknown kind", body: `{"kind":"thread","id":1,"direction":"up"}`, wantError: "invalid_target"},
		{name: "non-positive id", body: `{"kind":"resource","id":0,"direction":"up"}`, wantError: "invalid_target"},
		{name: "empty direction", body: `{"kind":"resource","id":1,"direction":""}`, wantError: "invalid_direction"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := performJSON(handler, http.MethodPost, "/engagement/votes", token, testCase.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected bad request, got %d", recorder.Code)
			}
			if payload := decodeBody(t, recorder); payload["error"] != testCase.wantError {
				t.Fatalf("expected error %s, got %v", testCase.wantError, payload["error"])
			}
		})
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "not found",
			err:        fmt.Errorf("wrapped: %w", engagement.ErrTargetNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "not_found",
		},
		{
			name:       "unsupported kind",
			err:        engagement.ErrUnsupportedKind,
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_kind",
		},
		{
			name:       "storage failure",
			err:        errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "engagement_failed",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			service := &stubEngagementService{
				toggleBookmark: func(engagement.UserID, content.Target) (engagement.BookmarkOutcome, error) {
					return engagement.BookmarkOutcome{}, testCase.err
				},
			}
			handler, token := newTestRouter(t, service)
			recorder := performJSON(handler, http.MethodPost, "/engagement/bookmarks", token, `{"kind":"image","id":3}`)
			if recorder.Code != testCase.wantStatus {
				t.Fatalf("unexpected status: got %d want %d", recorder.Code, testCase.wantStatus)
			}
			if payload := decodeBody(t, recorder); payload["error"] != testCase.wantError {
				t.Fatalf("expected error %s, got %v", testCase.wantError, payload["error"])
			}
		})
	}
}

func TestServiceErrorCodeIsExposed(t *testing.T) {
	service := &stubEngagementService{
		stats: func(content.ItemID) (engagement.CollectionStats, error) {
			_, err := engagement.NewService(engagement.ServiceConfig{})
			return engagement.CollectionStats{}, err
		},
	}
	handler, token := newTestRouter(t, service)
	recorder := performJSON(handler, http.MethodGet, "/collections/5/stats", token, "")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal server error, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["code"] != "engagement.service.new.missing_database" {
		t.Fatalf("expected service error code, got %v", payload["code"])
	}
}

func TestBookmarkAndViewEndpoints(t *testing.T) {
	var viewed content.Target
	service := &stubEngagementService{
		toggleBookmark: func(_ engagement.UserID, target content.Target) (engagement.BookmarkOutcome, error) {
			return engagement.BookmarkOutcome{Target: target, Status: content.BookmarkSaved, Version: 2}, nil
		},
		recordView: func(scope content.Target) error {
			viewed = scope
			return nil
		},
	}
	handler, token := newTestRouter(t, service)

	recorder := performJSON(handler, http.MethodPost, "/engagement/bookmarks", token, `{"kind":"image","id":3}`)
	if recorder.Body.String() != `{"kind":"image","id":3,"status":"saved","version":2}` {
		t.Fatalf("unexpected bookmark body %s", recorder.Body.String())
	}

	recorder = performJSON(handler, http.MethodPost, "/engagement/views", token, `{"kind":"collection","id":9}`)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content, got %d", recorder.Code)
	}
	if viewed != (content.Target{Kind: content.KindCollection, ID: 9}) {
		t.Fatalf("unexpected view scope %+v", viewed)
	}
}

func TestStatsAndListingEndpoints(t *testing.T) {
	service := &stubEngagementService{
		stats: func(collectionID content.ItemID) (engagement.CollectionStats, error) {
			return engagement.CollectionStats{CollectionID: collectionID.Int64(), ResourceCount: 2, TotalVotes: 5, TotalViews: 11}, nil
		},
		resources: func(_ engagement.UserID, collectionID content.ItemID) ([]engagement.ResourceEntry, error) {
			return []engagement.ResourceEntry{{
				Resource: engagement.Resource{ID: 1, CollectionID: collectionID.Int64(), Title: "Tour", URL: "https://go.dev/tour", CreatedAtSeconds: 10},
				Votes:    3,
				UserVote: content.DirectionUp,
				Version:  5,
			}}, nil
		},
		answers: func(_ engagement.UserID, questionID content.ItemID) ([]engagement.AnswerEntry, error) {
			return []engagement.AnswerEntry{{
				Answer: engagement.Answer{ID: 3, CommunityID: 1, QuestionID: questionID.Int64(), Content: "Use channels", CreatedAtSeconds: 6},
				Votes:  -1,
			}}, nil
		},
		bookmarks: func(_ engagement.UserID, kind content.Kind) ([]engagement.BookmarkEntry, error) {
			return []engagement.BookmarkEntry{{
				Target:         content.Target{Kind: kind, ID: 4},
				OwnerID:        2,
				MediaRef:       "cat.png",
				SavedAtSeconds: 99,
				Version:        1,
			}}, nil
		},
	}
	handler, token := newTestRouter(t, service)

	recorder := performJSON(handler, http.MethodGet, "/collections/8/stats", token, "")
	if recorder.Body.String() != `{"collection_id":8,"resource_count":2,"total_votes":5,"total_views":11}` {
		t.Fatalf("unexpected stats body %s", recorder.Body.String())
	}

	recorder = performJSON(handler, http.MethodGet, "/collections/8/resources", token, "")
	expectedResources := `{"resources":[{"id":1,"collection_id":8,"title":"Tour","url":"https://go.dev/tour","created_at_s":10,"votes":3,"user_vote":"up","version":5}]}`
	if recorder.Body.String() != expectedResources {
		t.Fatalf("unexpected resources body %s", recorder.Body.String())
	}

	recorder = performJSON(handler, http.MethodGet, "/questions/2/answers", token, "")
	expectedAnswers := `{"answers":[{"id":3,"question_id":2,"community_id":1,"content":"Use channels","created_at_s":6,"votes":-1,"user_vote":null,"version":0}]}`
	if recorder.Body.String() != expectedAnswers {
		t.Fatalf("unexpected answers body %s", recorder.Body.String())
	}

	recorder = performJSON(handler, http.MethodGet, "/questions/x/answers", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid question id, got %d", recorder.Code)
	}

	recorder = performJSON(handler, http.MethodGet, "/bookmarks?kind=image", token, "")
	expectedBookmarks := `{"bookmarks":[{"kind":"image","id":4,"owner_id":2,"media_ref":"cat.png","saved_at_s":99,"version":1}]}`
	if recorder.Body.String() != expectedBookmarks {
		t.Fatalf("unexpected bookmarks body %s", recorder.Body.String())
	}

	recorder = performJSON(handler, http.MethodGet, "/bookmarks?kind=", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing kind, got %d", recorder.Code)
	}

	recorder = performJSON(handler, http.MethodGet, "/collections/abc/stats", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid id, got %d", recorder.Code)
	}
}
