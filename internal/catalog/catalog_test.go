package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const sampleFixture = `
communities:
  - id: 1
    name: Go
    description: "Gophers <b>unite</b>"
    created_at_s: 10
    collections:
      - id: 10
        name: "Concurrency & Channels"
        created_at_s: 11
        resources:
          - id: 7
            title: "<script>alert(1)</script>Tour"
            url: https://go.dev/tour
            created_at_s: 100
          - id: 8
            title: Blog
            url: https://go.dev/blog
            remark: weekly
            created_at_s: 200
    images:
      - id: 7
        media_ref: gopher.png
        created_at_s: 12
    products:
      - id: 7
        title: Book
        url: https://example.com/book
        catalogue: books
        created_at_s: 13
    answers:
      - id: 3
        question_id: 1
        content: Use channels
        created_at_s: 14
`

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(engagement.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestParseAcceptsSampleFixture(t *testing.T) {
	fixture, err := Parse([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(fixture.Communities) != 1 {
		t.Fatalf("expected one community, got %d", len(fixture.Communities))
	}
	community := fixture.Communities[0]
	if len(community.Collections) != 1 || len(community.Collections[0].Resources) != 2 {
		t.Fatalf("unexpected collection shape %+v", community.Collections)
	}
	if community.Answers[0].QuestionID != 1 {
		t.Fatalf("expected question id 1, got %d", community.Answers[0].QuestionID)
	}
}

func TestParseRejectsInvalidFixtures(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{
			name: "missing community id",
			yaml: "communities:\n  - name: Go\n",
		},
		{
			name: "duplicate resource id",
			yaml: `
communities:
  - id: 1
    name: Go
    collections:
      - id: 10
        name: A
        resources:
          - {id: 7, title: a, url: "https://a.example"}
          - {id: 7, title: b, url: "https://b.example"}
`,
		},
		{
			name: "non web url",
			yaml: `
communities:
  - id: 1
    name: Go
    products:
      - {id: 2, title: Book, url: "ftp://example.com"}
`,
		},
		{
			name: "answer without question",
			yaml: `
communities:
  - id: 1
    name: Go
    answers:
      - {id: 3, content: hi}
`,
		},
		{
			name: "blank image ref",
			yaml: `
communities:
  - id: 1
    name: Go
    images:
      - {id: 3, media_ref: "  "}
`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Parse([]byte(testCase.yaml))
			if !errors.Is(err, ErrInvalidFixture) {
				t.Fatalf("expected ErrInvalidFixture, got %v", err)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("communities: [\n"))
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if errors.Is(err, ErrInvalidFixture) {
		t.Fatalf("syntax errors should not be reported as validation failures")
	}
}

func TestLoadFileReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleFixture), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	fixture, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if fixture.Communities[0].Name != "Go" {
		t.Fatalf("unexpected community %+v", fixture.Communities[0])
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestNewImporterRequiresDatabase(t *testing.T) {
	if _, err := NewImporter(nil, nil); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestImportWritesSanitizedRows(t *testing.T) {
	db := newTestDatabase(t)
	importer, err := NewImporter(db, nil)
	if err != nil {
		t.Fatalf("failed to construct importer: %v", err)
	}
	fixture, err := Parse([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	summary, err := importer.Import(context.Background(), fixture)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	want := Summary{Communities: 1, Collections: 1, Resources: 2, Images: 1, Products: 1, Answers: 1}
	if summary != want {
		t.Fatalf("unexpected summary: got %+v want %+v", summary, want)
	}

	var community engagement.Community
	if err := db.First(&community, 1).Error; err != nil {
		t.Fatalf("failed to load community: %v", err)
	}
	if community.Description != "Gophers unite" {
		t.Fatalf("expected markup stripped, got %q", community.Description)
	}

	var collection engagement.Collection
	if err := db.First(&collection, 10).Error; err != nil {
		t.Fatalf("failed to load collection: %v", err)
	}
	if collection.Name != "Concurrency & Channels" {
		t.Fatalf("expected entities kept as plain text, got %q", collection.Name)
	}

	var resource engagement.Resource
	if err := db.First(&resource, 7).Error; err != nil {
		t.Fatalf("failed to load resource: %v", err)
	}
	if resource.Title != "Tour" || resource.CollectionID != 10 {
		t.Fatalf("unexpected resource %+v", resource)
	}

	var answer engagement.Answer
	if err := db.First(&answer, 3).Error; err != nil {
		t.Fatalf("failed to load answer: %v", err)
	}
	if answer.QuestionID != 1 || answer.CommunityID != 1 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestReimportKeepsCounters(t *testing.T) {
	db := newTestDatabase(t)
	importer, err := NewImporter(db, nil)
	if err != nil {
		t.Fatalf("failed to construct importer: %v", err)
	}
	fixture, err := Parse([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := importer.Import(context.Background(), fixture); err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if err := db.Model(&engagement.Resource{}).Where("id = ?", 8).Update("views", 5).Error; err != nil {
		t.Fatalf("failed to bump views: %v", err)
	}
	if err := db.Model(&engagement.Answer{}).Where("id = ?", 3).Update("votes", 2).Error; err != nil {
		t.Fatalf("failed to bump votes: %v", err)
	}

	fixture.Communities[0].Collections[0].Resources[1].Title = "Go Blog"
	if _, err := importer.Import(context.Background(), fixture); err != nil {
		t.Fatalf("unexpected reimport error: %v", err)
	}

	var resource engagement.Resource
	if err := db.First(&resource, 8).Error; err != nil {
		t.Fatalf("failed to load resource: %v", err)
	}
	if resource.Title != "Go Blog" {
		t.Fatalf("expected title update, got %q", resource.Title)
	}
	if resource.Views != 5 {
		t.Fatalf("expected views preserved, got %d", resource.Views)
	}

	var answer engagement.Answer
	if err := db.First(&answer, 3).Error; err != nil {
		t.Fatalf("failed to load answer: %v", err)
	}
	if answer.Votes != 2 {
		t.Fatalf("expected answer votes preserved, got %d", answer.Votes)
	}

	var resourceCount int64
	if err := db.Model(&engagement.Resource{}).Count(&resourceCount).Error; err != nil {
		t.Fatalf("failed to count resources: %v", err)
	}
	if resourceCount != 2 {
		t.Fatalf("expected 2 resources after reimport, got %d", resourceCount)
	}
}
