package worker

import (
	"encoding/json"
	"math"
	"testing"

	"gorm.io/datatypes"

	"resumatch/internal/database"
)

func jsonList(t *testing.T, values []string) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("marshal list: %v", err)
	}
	return datatypes.JSON(data)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Go, PostgreSQL & gRPC! (v2)")
	want := []string{"go", "postgresql", "grpc", "v2"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), tokens)
	}
	for _, w := range want {
		if _, ok := tokens[w]; !ok {
			t.Fatalf("missing token %q in %v", w, tokens)
		}
	}
	if _, ok := tokens["v"]; ok {
		t.Fatal("single-character fragments must be dropped")
	}
}

func TestAverageMatchScore_NoJobs(t *testing.T) {
	row := &database.Resume{Title: "Go Developer"}
	if score := averageMatchScore(row, nil); score != 0 {
		t.Fatalf("expected 0 for empty job list, got %f", score)
	}
}

func TestAverageMatchScore_EmptyResume(t *testing.T) {
	row := &database.Resume{Title: ""}
	jobs := []database.JobDescription{{Title: "Go Developer", Description: "Go"}}
	if score := averageMatchScore(row, jobs); score != 0 {
		t.Fatalf("expected 0 for empty resume corpus, got %f", score)
	}
}

func TestAverageMatchScore_FullOverlap(t *testing.T) {
	row := &database.Resume{Title: "Go PostgreSQL"}
	jobs := []database.JobDescription{
		{
			Title:        "Backend Engineer",
			Description:  "We use Go and PostgreSQL",
			Requirements: jsonList(t, []string{"Go", "PostgreSQL"}),
		},
	}

	score := averageMatchScore(row, jobs)
	if math.Abs(score-100) > 1e-9 {
		t.Fatalf("expected 100 for full overlap, got %f", score)
	}
}

func TestAverageMatchScore_AveragesAcrossJobs(t *testing.T) {
	row := &database.Resume{Title: "Go PostgreSQL"}
	jobs := []database.JobDescription{
		{Title: "Go PostgreSQL", Description: ""},
		{Title: "Rust Embedded", Description: ""},
	}

	// 第一份职位覆盖全部两个词，第二份一个都不覆盖：均值 50
	score := averageMatchScore(row, jobs)
	if math.Abs(score-50) > 1e-9 {
		t.Fatalf("expected 50, got %f", score)
	}
}
