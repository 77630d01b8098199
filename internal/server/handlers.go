package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/gin-gonic/gin"
)

type targetPayload struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type voteRequestPayload struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
}

type voteResponsePayload struct {
	Kind     string  `json:"kind"`
	ID       int64   `json:"id"`
	Votes    int64   `json:"votes"`
	UserVote *string `json:"user_vote"`
	Version  int64   `json:"version"`
}

type bookmarkResponsePayload struct {
	Kind    string `json:"kind"`
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type statsResponsePayload struct {
	CollectionID  int64 `json:"collection_id"`
	ResourceCount int64 `json:"resource_count"`
	TotalVotes    int64 `json:"total_votes"`
	TotalViews    int64 `json:"total_views"`
}

type resourcePayload struct {
	ID               int64   `json:"id"`
	CollectionID     int64   `json:"collection_id"`
	Title            string  `json:"title"`
	URL              string  `json:"url"`
	CreatedAtSeconds int64   `json:"created_at_s"`
	Votes            int64   `json:"votes"`
	UserVote         *string `json:"user_vote"`
	Version          int64   `json:"version"`
}

type resourcesResponsePayload struct {
	Resources []resourcePayload `json:"resources"`
}

type answerPayload struct {
	ID               int64   `json:"id"`
	QuestionID       int64   `json:"question_id"`
	CommunityID      int64   `json:"community_id"`
	Content          string  `json:"content"`
	CreatedAtSeconds int64   `json:"created_at_s"`
	Votes            int64   `json:"votes"`
	UserVote         *string `json:"user_vote"`
	Version          int64   `json:"version"`
}

type answersResponsePayload struct {
	Answers []answerPayload `json:"answers"`
}

type bookmarkPayload struct {
	Kind           string `json:"kind"`
	ID             int64  `json:"id"`
	OwnerID        int64  `json:"owner_id"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	MediaRef       string `json:"media_ref,omitempty"`
	SavedAtSeconds int64  `json:"saved_at_s"`
	Version        int64  `json:"version"`
}

type bookmarksResponsePayload struct {
	Bookmarks []bookmarkPayload `json:"bookmarks"`
}

func directionPayload(direction content.Direction) *string {
	if direction == content.DirectionNone {
		return nil
	}
	value := direction.String()
	return &value
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	target, err := content.NewTarget(request.Kind, request.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_target"})
		return
	}
	direction, err := content.ParseDirection(request.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_direction"})
		return
	}

	outcome, err := h.engagement.CastVote(c.Request.Context(), userID, target, direction)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, voteResponsePayload{
		Kind:     outcome.Target.Kind.String(),
		ID:       outcome.Target.ID.Int64(),
		Votes:    outcome.Net,
		UserVote: directionPayload(outcome.Direction),
		Version:  outcome.Version,
	})
}

func (h *httpHandler) handleToggleBookmark(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	target, ok := bindTarget(c)
	if !ok {
		return
	}

	outcome, err := h.engagement.ToggleBookmark(c.Request.Context(), userID, target)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookmarkResponsePayload{
		Kind:    outcome.Target.Kind.String(),
		ID:      outcome.Target.ID.Int64(),
		Status:  string(outcome.Status),
		Version: outcome.Version,
	})
}

func (h *httpHandler) handleRecordView(c *gin.Context) {
	if _, ok := h.currentUser(c); !ok {
		return
	}

	target, ok := bindTarget(c)
	if !ok {
		return
	}

	if err := h.engagement.RecordView(c.Request.Context(), target); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCollectionStats(c *gin.Context) {
	collectionID, err := content.ParseItemID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_collection_id"})
		return
	}

	stats, err := h.engagement.CollectionStats(c.Request.Context(), collectionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, statsResponsePayload{
		CollectionID:  stats.CollectionID,
		ResourceCount: stats.ResourceCount,
		TotalVotes:    stats.TotalVotes,
		TotalViews:    stats.TotalViews,
	})
}

func (h *httpHandler) handleListResources(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	collectionID, err := content.ParseItemID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_collection_id"})
		return
	}

	entries, err := h.engagement.ListResources(c.Request.Context(), userID, collectionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	response := resourcesResponsePayload{Resources: make([]resourcePayload, 0, len(entries))}
	for _, entry := range entries {
		response.Resources = append(response.Resources, resourcePayload{
			ID:               entry.Resource.ID,
			CollectionID:     entry.Resource.CollectionID,
			Title:            entry.Resource.Title,
			URL:              entry.Resource.URL,
			CreatedAtSeconds: entry.Resource.CreatedAtSeconds,
			Votes:            entry.Votes,
			UserVote:         directionPayload(entry.UserVote),
			Version:          entry.Version,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListAnswers(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	questionID, err := content.ParseItemID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_question_id"})
		return
	}

	entries, err := h.engagement.ListAnswers(c.Request.Context(), userID, questionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	response := answersResponsePayload{Answers: make([]answerPayload, 0, len(entries))}
	for _, entry := range entries {
		response.Answers = append(response.Answers, answerPayload{
			ID:               entry.Answer.ID,
			QuestionID:       entry.Answer.QuestionID,
			CommunityID:      entry.Answer.CommunityID,
			Content:          entry.Answer.Content,
			CreatedAtSeconds: entry.Answer.CreatedAtSeconds,
			Votes:            entry.Votes,
			UserVote:         directionPayload(entry.UserVote),
			Version:          entry.Version,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListBookmarks(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	kind, err := content.ParseKind(c.Query("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return
	}

	entries, err := h.engagement.ListBookmarks(c.Request.Context(), userID, kind)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	response := bookmarksResponsePayload{Bookmarks: make([]bookmarkPayload, 0, len(entries))}
	for _, entry := range entries {
		response.Bookmarks = append(response.Bookmarks, bookmarkPayload{
			Kind:           entry.Target.Kind.String(),
			ID:             entry.Target.ID.Int64(),
			OwnerID:        entry.OwnerID,
			Title:          entry.Title,
			URL:            entry.URL,
			MediaRef:       entry.MediaRef,
			SavedAtSeconds: entry.SavedAtSeconds,
			Version:        entry.Version,
		})
	}
	c.JSON(http.StatusOK, response)
}

func bindTarget(c *gin.Context) (content.Target, bool) {
	var request targetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return content.Target{}, false
	}
	target, err := content.NewTarget(request.Kind, request.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_target"})
		return content.Target{}, false
	}
	return target, true
}
