// Package file loads quiz content and the power-up catalog from YAML or JSON files on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"trivia-session-service/internal/domain"
)

var extensions = []string{".yaml", ".yml", ".json"}

// QuizLoader reads {dir}/{slug}.yaml|.yml|.json where slug is the lower-cased quiz name with
// spaces replaced by underscores.
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

// Slug maps a quiz name to its file stem.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, name string) (domain.Quiz, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quiz{}, err
	}
	slug := Slug(name)
	if slug == "" || strings.ContainsAny(slug, `/\`) || strings.Contains(slug, "..") {
		return domain.Quiz{}, fmt.Errorf("%w: %q", domain.ErrQuizNotFound, name)
	}

	for _, ext := range extensions {
		path := filepath.Join(l.dir, slug+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("read quiz %s: %w", path, err)
		}
		quiz, err := decodeQuiz(data, ext)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("decode quiz %s: %w", path, err)
		}
		if quiz.Name == "" {
			quiz.Name = name
		}
		return quiz.Normalize(), nil
	}
	return domain.Quiz{}, fmt.Errorf("%w: %q", domain.ErrQuizNotFound, name)
}

// List returns the quiz names found in the directory, by file stem.
func (l *QuizLoader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range extensions {
			if ext == known {
				names = append(names, strings.TrimSuffix(entry.Name(), ext))
				break
			}
		}
	}
	return names, nil
}

func decodeQuiz(data []byte, ext string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if ext == ".json" {
		err := json.Unmarshal(data, &quiz)
		return quiz, err
	}
	err := yaml.Unmarshal(data, &quiz)
	return quiz, err
}
