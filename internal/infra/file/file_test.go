package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"trivia-session-service/internal/domain"
)

const capitalsYAML = `
name: World Capitals
creator_id: admin
questions:
  - text: Capital of France?
    options: [Berlin, Paris, Rome, Madrid]
    correct_indices: [1]
    explanation: Paris has been the capital since 987.
  - text: Order by population
    type: reorder
    options: [Oslo, Tokyo, Paris]
    correct_indices: [1, 2, 0]
    time_limit: 45
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestQuizLoaderReadsYAMLBySlug(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "world_capitals.yaml", capitalsYAML)
	loader := NewQuizLoader(dir)

	quiz, err := loader.LoadQuiz(context.Background(), "World Capitals")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.Name != "World Capitals" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	first, second := quiz.Questions[0], quiz.Questions[1]
	if first.Kind != domain.QuestionStandard || first.TimeLimit != domain.DefaultTimeLimit || first.Weight != 1 {
		t.Fatalf("expected defaults filled, got %+v", first)
	}
	if !second.IsReorder() || second.TimeLimit != 45 || !slices.Equal(second.CorrectIndices, []int{1, 2, 0}) {
		t.Fatalf("unexpected reorder question %+v", second)
	}
}

func TestQuizLoaderReadsJSONAndLists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "primes.json", `{"questions":[{"text":"Pick primes","options":["2","4"],"correct_indices":[0],"allow_multi_select":true}]}`)
	writeFile(t, dir, "notes.txt", "ignored")
	loader := NewQuizLoader(dir)

	quiz, err := loader.LoadQuiz(context.Background(), "primes")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.Name != "primes" || !quiz.Questions[0].MultiSelect {
		t.Fatalf("unexpected quiz %+v", quiz)
	}

	names, err := loader.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(names, []string{"primes"}) {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestQuizLoaderMissingAndTraversal(t *testing.T) {
	loader := NewQuizLoader(t.TempDir())
	for _, name := range []string{"nope", "../etc/passwd", ""} {
		if _, err := loader.LoadQuiz(context.Background(), name); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("%q: expected quiz not found, got %v", name, err)
		}
	}
}

func TestCatalogReadsYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "powerups.yaml", `
powerups:
  - name: Eraser
    description: Removes one wrong option
    effect: eraser
  - name: Gift
    description: Give points
    effect: gift
    value: 500
`)
	items, err := NewCatalog(path).PowerUps(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(items) != 2 || items[1].Effect != domain.EffectGift || items[1].Value != 500 {
		t.Fatalf("unexpected catalog %+v", items)
	}
}

func TestCatalogRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	unknown := writeFile(t, dir, "unknown.yaml", "powerups:\n  - name: Warp\n    effect: warp\n")
	if _, err := NewCatalog(unknown).PowerUps(context.Background()); !errors.Is(err, domain.ErrUnknownEffect) {
		t.Fatalf("expected unknown effect, got %v", err)
	}
	dup := writeFile(t, dir, "dup.json", `{"powerups":[{"name":"A","effect":"eraser"},{"name":"A","effect":"gift"}]}`)
	if _, err := NewCatalog(dup).PowerUps(context.Background()); err == nil {
		t.Fatalf("expected duplicate name rejected")
	}
}
