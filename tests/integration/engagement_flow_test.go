package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/auth"
	"github.com/MarcoPoloResearchLab/hubs/internal/bookmarks"
	"github.com/MarcoPoloResearchLab/hubs/internal/catalog"
	"github.com/MarcoPoloResearchLab/hubs/internal/client"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/database"
	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	"github.com/MarcoPoloResearchLab/hubs/internal/ledger"
	"github.com/MarcoPoloResearchLab/hubs/internal/ranking"
	"github.com/MarcoPoloResearchLab/hubs/internal/server"
	"github.com/MarcoPoloResearchLab/hubs/internal/stats"
	"github.com/MarcoPoloResearchLab/hubs/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionIssuer        = "hubs-api"
	collectionID         = content.ItemID(10)
)

const catalogFixture = `
communities:
  - id: 1
    name: Go
    created_at_s: 1
    collections:
      - id: 10
        name: Concurrency
        created_at_s: 2
        resources:
          - {id: 7, title: Tour, url: "https://go.dev/tour", created_at_s: 100}
          - {id: 8, title: Blog, url: "https://go.dev/blog", created_at_s: 200}
    images:
      - {id: 7, media_ref: gopher.png, created_at_s: 3}
    answers:
      - {id: 7, question_id: 10, content: "Use a WaitGroup", created_at_s: 300}
      - {id: 8, question_id: 10, content: "Use errgroup", created_at_s: 400}
`

type harness struct {
	client *client.Client
	issuer *auth.TokenIssuer
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	fixture, err := catalog.Parse([]byte(catalogFixture))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	importer, err := catalog.NewImporter(db, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build importer: %v", err)
	}
	if _, err := importer.Import(context.Background(), fixture); err != nil {
		t.Fatalf("failed to import fixture: %v", err)
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	engagementService, err := engagement.NewService(engagement.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build engagement service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            userService,
		Engagement:       engagementService,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)

	apiClient, err := client.New(client.Config{BaseURL: testServer.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return harness{client: apiClient, issuer: issuer}
}

func (h harness) credential(t *testing.T, subject string) client.Credential {
	t.Helper()
	issued, err := h.issuer.Issue(subject, subject)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return client.Credential{Token: issued.Token, UserID: subject}
}

func TestVotingRanksAndReconcilesAcrossVoters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.credential(t, "alice")
	bob := h.credential(t, "bob")

	aggregate, err := stats.New(h.client, nil)
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}
	aliceLedger, err := ledger.New(ledger.Config{Client: h.client, Stats: aggregate})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	bobLedger, err := ledger.New(ledger.Config{Client: h.client})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}

	if _, err := aliceLedger.Load(ctx, alice, collectionID); err != nil {
		t.Fatalf("alice load failed: %v", err)
	}
	if _, err := bobLedger.Load(ctx, bob, collectionID); err != nil {
		t.Fatalf("bob load failed: %v", err)
	}

	before, err := aggregate.Get(ctx, alice, collectionID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if before.ResourceCount != 2 || before.TotalVotes != 0 {
		t.Fatalf("unexpected initial stats %+v", before)
	}

	blog := content.Target{Kind: content.KindResource, ID: 8}
	snapshot, err := aliceLedger.CastVote(ctx, alice, blog, content.DirectionUp)
	if err != nil {
		t.Fatalf("alice vote failed: %v", err)
	}
	if snapshot.Net != 1 || snapshot.Direction != content.DirectionUp || snapshot.State != ledger.StateReconciled {
		t.Fatalf("unexpected alice snapshot %+v", snapshot)
	}

	snapshot, err = bobLedger.CastVote(ctx, bob, blog, content.DirectionUp)
	if err != nil {
		t.Fatalf("bob vote failed: %v", err)
	}
	if snapshot.Net != 2 {
		t.Fatalf("expected authoritative net 2 for bob, got %d", snapshot.Net)
	}

	snapshot, err = aliceLedger.CastVote(ctx, alice, blog, content.DirectionUp)
	if err != nil {
		t.Fatalf("alice retraction failed: %v", err)
	}
	if snapshot.Net != 1 || snapshot.Direction != content.DirectionNone {
		t.Fatalf("expected retraction to leave bob's vote, got %+v", snapshot)
	}

	after, err := aggregate.Get(ctx, alice, collectionID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if after.TotalVotes != 1 {
		t.Fatalf("expected stats refetched after vote, got %+v", after)
	}

	if _, err := aliceLedger.Load(ctx, alice, collectionID); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	result := ranking.Rank(aliceLedger.Entries(content.KindResource, collectionID))
	if !result.IsTop(blog) {
		t.Fatalf("expected blog on top, got %+v", result.Top)
	}
}

func TestViewsBookmarksAndFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.credential(t, "alice")
	bob := h.credential(t, "bob")

	aggregate, err := stats.New(h.client, nil)
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}
	totals, err := aggregate.RecordView(ctx, alice, content.Target{Kind: content.KindResource, ID: 7}, collectionID)
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	totals, err = aggregate.RecordView(ctx, alice, content.Target{Kind: content.KindCollection, ID: collectionID}, collectionID)
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if totals.TotalViews != 2 {
		t.Fatalf("expected two counted views, got %+v", totals)
	}

	registry, err := bookmarks.New(h.client, nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	if err := registry.Hydrate(ctx, alice, content.KindResource, content.KindImage); err != nil {
		t.Fatalf("hydrate failed: %v", err)
	}
	resource := content.Target{Kind: content.KindResource, ID: 7}
	image := content.Target{Kind: content.KindImage, ID: 7}
	if status, err := registry.Toggle(ctx, alice, resource); err != nil || status != content.BookmarkSaved {
		t.Fatalf("expected resource saved, got %q (%v)", status, err)
	}
	if registry.Contains(image) {
		t.Fatalf("image 7 must not share the resource bookmark")
	}
	if status, err := registry.Toggle(ctx, alice, image); err != nil || status != content.BookmarkSaved {
		t.Fatalf("expected image saved, got %q (%v)", status, err)
	}

	fresh, err := bookmarks.New(h.client, nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	if err := fresh.Hydrate(ctx, alice, content.KindResource); err != nil {
		t.Fatalf("hydrate failed: %v", err)
	}
	saved := fresh.List(content.KindResource)
	if len(saved) != 1 || saved[0].Title != "Tour" {
		t.Fatalf("expected hydrated resource bookmark with title, got %+v", saved)
	}
	bobSaved, err := h.client.ListBookmarks(ctx, bob, content.KindResource)
	if err != nil {
		t.Fatalf("bob listing failed: %v", err)
	}
	if len(bobSaved) != 0 {
		t.Fatalf("bookmarks leaked across users: %+v", bobSaved)
	}

	votes, err := ledger.New(ledger.Config{Client: h.client})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	missing, err := content.NewItem(99, int64(collectionID), time.Unix(0, 0), content.ResourceFields{Title: "gone"})
	if err != nil {
		t.Fatalf("failed to build item: %v", err)
	}
	votes.Track(ledger.Hydration{Item: missing, Net: 4})
	snapshot, err := votes.CastVote(ctx, alice, missing.Target, content.DirectionDown)
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !snapshot.Stale || snapshot.Net != 4 || snapshot.State != ledger.StateRolledBack {
		t.Fatalf("expected stale rollback, got %+v", snapshot)
	}

	forged := client.Credential{Token: "not-a-token"}
	if _, err := h.client.GetStats(ctx, forged, collectionID); !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for forged token, got %v", err)
	}
	if _, err := h.client.CastVote(ctx, alice, content.Target{Kind: content.KindImage, ID: 7}, content.DirectionUp); !errors.Is(err, client.ErrValidation) {
		t.Fatalf("expected validation error for image vote, got %v", err)
	}
}

func TestAnswersRankApartFromResourcesWithSharedIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.credential(t, "alice")
	bob := h.credential(t, "bob")

	aggregate, err := stats.New(h.client, nil)
	if err != nil {
		t.Fatalf("failed to build aggregator: %v", err)
	}
	votes, err := ledger.New(ledger.Config{Client: h.client, Stats: aggregate})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	if _, err := votes.Load(ctx, alice, collectionID); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	answers, err := votes.LoadAnswers(ctx, alice, content.ItemID(10))
	if err != nil {
		t.Fatalf("load answers failed: %v", err)
	}
	if len(answers) != 2 || answers[0].Item.Target.ID != 8 {
		t.Fatalf("expected newest answer first, got %+v", answers)
	}

	wait := content.Target{Kind: content.KindAnswer, ID: 7}
	if _, err := h.client.CastVote(ctx, bob, wait, content.DirectionUp); err != nil {
		t.Fatalf("bob vote failed: %v", err)
	}
	snapshot, err := votes.CastVote(ctx, alice, wait, content.DirectionUp)
	if err != nil {
		t.Fatalf("alice vote failed: %v", err)
	}
	if snapshot.Net != 2 || snapshot.Version != 2 {
		t.Fatalf("expected authoritative net and version, got %+v", snapshot)
	}
	if _, ok := aggregate.Latest(collectionID); ok {
		t.Fatalf("answer vote must not touch collection stats")
	}

	resources := votes.Entries(content.KindResource, collectionID)
	if len(resources) != 2 {
		t.Fatalf("expected only resources ranked for the collection, got %+v", resources)
	}
	for _, entry := range resources {
		if entry.Item.Target.Kind != content.KindResource || entry.Votes != 0 {
			t.Fatalf("answer votes leaked into the collection ranking: %+v", entry)
		}
	}
	result := ranking.Rank(votes.Entries(content.KindAnswer, content.ItemID(10)))
	if !result.IsTop(wait) {
		t.Fatalf("expected the voted answer on top, got %+v", result.Top)
	}

	totals, err := aggregate.Get(ctx, alice, collectionID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if totals.TotalVotes != 0 {
		t.Fatalf("collection totals must exclude answer votes, got %+v", totals)
	}
	if _, err := h.client.ListAnswers(ctx, alice, content.ItemID(404)); err != nil {
		t.Fatalf("listing an unanswered question failed: %v", err)
	}
}
