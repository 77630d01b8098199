package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
)

var errUnknownAction = errors.New("unknown action")

type route struct {
	method string
	path   string
	query  url.Values
	body   any
}

type targetPayload struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type votePayload struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type voteResultPayload struct {
	Kind     string  `json:"kind"`
	ID       int64   `json:"id"`
	Votes    *int64  `json:"votes"`
	UserVote *string `json:"user_vote"`
	Version  int64   `json:"version"`
}

type bookmarkResultPayload struct {
	Kind    string `json:"kind"`
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type statsPayload struct {
	CollectionID  int64 `json:"collection_id"`
	ResourceCount int64 `json:"resource_count"`
	TotalVotes    int64 `json:"total_votes"`
	TotalViews    int64 `json:"total_views"`
}

type bookmarkListPayload struct {
	Bookmarks []struct {
		Kind           string `json:"kind"`
		ID             int64  `json:"id"`
		OwnerID        int64  `json:"owner_id"`
		Title          string `json:"title"`
		URL            string `json:"url"`
		MediaRef       string `json:"media_ref"`
		SavedAtSeconds int64  `json:"saved_at_s"`
		Version        int64  `json:"version"`
	} `json:"bookmarks"`
}

type resourceListPayload struct {
	Resources []struct {
		ID               int64   `json:"id"`
		CollectionID     int64   `json:"collection_id"`
		Title            string  `json:"title"`
		URL              string  `json:"url"`
		CreatedAtSeconds int64   `json:"created_at_s"`
		Votes            int64   `json:"votes"`
		UserVote         *string `json:"user_vote"`
		Version          int64   `json:"version"`
	} `json:"resources"`
}

type answerListPayload struct {
	Answers []struct {
		ID               int64   `json:"id"`
		QuestionID       int64   `json:"question_id"`
		Content          string  `json:"content"`
		CreatedAtSeconds int64   `json:"created_at_s"`
		Votes            int64   `json:"votes"`
		UserVote         *string `json:"user_vote"`
		Version          int64   `json:"version"`
	} `json:"answers"`
}

func parseUserVote(raw *string) (content.Direction, error) {
	if raw == nil {
		return content.DirectionNone, nil
	}
	return content.ParseStoredDirection(*raw)
}

func validTarget(request Request) error {
	if _, err := content.ParseKind(request.Kind.String()); err != nil {
		return err
	}
	if _, err := content.NewItemID(request.ID.Int64()); err != nil {
		return err
	}
	return nil
}

func requireCollection(request Request) error {
	if request.Kind != content.KindCollection {
		return fmt.Errorf("%w: %s expects a collection, got %s", content.ErrInvalidKind, request.Action, request.Kind)
	}
	_, err := content.NewItemID(request.ID.Int64())
	return err
}

func buildRoute(request Request) (route, error) {
	switch request.Action {
	case ActionVote:
		if err := validTarget(request); err != nil {
			return route{}, err
		}
		if _, err := content.ParseDirection(request.Payload.Direction.String()); err != nil {
			return route{}, err
		}
		return route{
			method: http.MethodPost,
			path:   "engagement/votes",
			body:   votePayload{Kind: request.Kind.String(), ID: request.ID.Int64(), Direction: request.Payload.Direction.String()},
		}, nil
	case ActionBookmark, ActionView:
		if err := validTarget(request); err != nil {
			return route{}, err
		}
		path := "engagement/bookmarks"
		if request.Action == ActionView {
			path = "engagement/views"
		}
		return route{
			method: http.MethodPost,
			path:   path,
			body:   targetPayload{Kind: request.Kind.String(), ID: request.ID.Int64()},
		}, nil
	case ActionStats, ActionListResources:
		if err := requireCollection(request); err != nil {
			return route{}, err
		}
		suffix := "stats"
		if request.Action == ActionListResources {
			suffix = "resources"
		}
		return route{
			method: http.MethodGet,
			path:   "collections/" + strconv.FormatInt(request.ID.Int64(), 10) + "/" + suffix,
		}, nil
	case ActionListAnswers:
		if request.Kind != content.KindAnswer {
			return route{}, fmt.Errorf("%w: %s expects answers, got %s", content.ErrInvalidKind, request.Action, request.Kind)
		}
		if _, err := content.NewItemID(request.ID.Int64()); err != nil {
			return route{}, err
		}
		return route{
			method: http.MethodGet,
			path:   "questions/" + strconv.FormatInt(request.ID.Int64(), 10) + "/answers",
		}, nil
	case ActionListBookmarks:
		if _, err := content.ParseKind(request.Kind.String()); err != nil {
			return route{}, err
		}
		return route{
			method: http.MethodGet,
			path:   "bookmarks",
			query:  url.Values{"kind": []string{request.Kind.String()}},
		}, nil
	default:
		return route{}, fmt.Errorf("%w: %q", errUnknownAction, request.Action)
	}
}

func decodeResponse(request Request, raw []byte) (Response, error) {
	switch request.Action {
	case ActionVote:
		var payload voteResultPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		if payload.Votes == nil {
			return Response{}, errors.New("vote response missing votes")
		}
		direction, err := parseUserVote(payload.UserVote)
		if err != nil {
			return Response{}, err
		}
		return Response{Vote: &VoteResult{Target: request.Target(), Net: *payload.Votes, Direction: direction, Version: payload.Version}}, nil
	case ActionBookmark:
		var payload bookmarkResultPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		status, err := content.ParseBookmarkStatus(payload.Status)
		if err != nil {
			return Response{}, err
		}
		return Response{Bookmark: &BookmarkResult{Target: request.Target(), Status: status, Version: payload.Version}}, nil
	case ActionView:
		return Response{}, nil
	case ActionStats:
		var payload statsPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		return Response{Stats: &Stats{
			CollectionID:  request.ID,
			ResourceCount: payload.ResourceCount,
			TotalVotes:    payload.TotalVotes,
			TotalViews:    payload.TotalViews,
		}}, nil
	case ActionListBookmarks:
		var payload bookmarkListPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		entries := make([]BookmarkEntry, 0, len(payload.Bookmarks))
		for _, bookmark := range payload.Bookmarks {
			target, err := content.NewTarget(bookmark.Kind, bookmark.ID)
			if err != nil {
				return Response{}, err
			}
			entries = append(entries, BookmarkEntry{
				Target:         target,
				OwnerID:        bookmark.OwnerID,
				Title:          bookmark.Title,
				URL:            bookmark.URL,
				MediaRef:       bookmark.MediaRef,
				SavedAtSeconds: bookmark.SavedAtSeconds,
				Version:        bookmark.Version,
			})
		}
		return Response{Bookmarks: entries}, nil
	case ActionListResources:
		var payload resourceListPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		entries := make([]ResourceEntry, 0, len(payload.Resources))
		for _, resource := range payload.Resources {
			item, err := content.NewItem(resource.ID, resource.CollectionID, time.Unix(resource.CreatedAtSeconds, 0).UTC(),
				content.ResourceFields{Title: resource.Title, URL: resource.URL})
			if err != nil {
				return Response{}, err
			}
			direction, err := parseUserVote(resource.UserVote)
			if err != nil {
				return Response{}, err
			}
			entries = append(entries, ResourceEntry{Item: item, Votes: resource.Votes, UserVote: direction, Version: resource.Version})
		}
		return Response{Resources: entries}, nil
	case ActionListAnswers:
		var payload answerListPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Response{}, err
		}
		entries := make([]AnswerEntry, 0, len(payload.Answers))
		for _, answer := range payload.Answers {
			item, err := content.NewItem(answer.ID, answer.QuestionID, time.Unix(answer.CreatedAtSeconds, 0).UTC(),
				content.AnswerFields{Excerpt: answer.Content})
			if err != nil {
				return Response{}, err
			}
			direction, err := parseUserVote(answer.UserVote)
			if err != nil {
				return Response{}, err
			}
			entries = append(entries, AnswerEntry{Item: item, Votes: answer.Votes, UserVote: direction, Version: answer.Version})
		}
		return Response{Answers: entries}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", errUnknownAction, request.Action)
	}
}
