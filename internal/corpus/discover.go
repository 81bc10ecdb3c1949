package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLen  = 100
	maxAuthorLen = 50
	headerLines  = 20
)

var (
	leadingDigits = regexp.MustCompile(`^(\d+)`)
	skipNames     = []string{"readme", "index", "copyright"}
)

// Document is a candidate file found under cards/.
type Document struct {
	Path     string
	AuthorID string
}

// Discover lists the text files of a checkout rooted at root, sorted by
// path.
func Discover(root string) ([]Document, error) {
	cards := filepath.Join(root, "cards")
	info, err := os.Stat(cards)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCardsDirNotFound, cards)
	}

	var docs []Document
	err = filepath.WalkDir(cards, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(cards, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 || parts[1] != "files" || !Eligible(parts[2]) {
			return nil
		}
		docs = append(docs, Document{Path: path, AuthorID: parts[0]})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", cards, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Eligible reports whether a file name under files/ holds a work's text.
func Eligible(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range skipNames {
		if strings.Contains(lower, s) {
			return false
		}
	}
	switch filepath.Ext(lower) {
	case ".txt":
		return true
	case ".zip":
		return strings.Contains(lower, "_ruby_") || strings.Contains(lower, "_txt_")
	}
	return false
}

// ExtractWorkInfo derives a work's identity from its path and the first
// lines of its decoded text.
func ExtractWorkInfo(root, path, decoded string) (WorkInfo, error) {
	slashed := filepath.ToSlash(path)
	parts := strings.Split(slashed, "/")
	if len(parts) < 4 || parts[len(parts)-2] != "files" || parts[len(parts)-4] != "cards" {
		return WorkInfo{}, fmt.Errorf("%w: %s", ErrMalformedPath, path)
	}
	authorID := parts[len(parts)-3]
	workID := leadingDigits.FindString(parts[len(parts)-1])
	if workID == "" || authorID == "" {
		return WorkInfo{}, fmt.Errorf("%w: %s", ErrMalformedPath, path)
	}

	sourcePath := slashed
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		sourcePath = filepath.ToSlash(rel)
	}

	info := WorkInfo{
		WorkID:     workID,
		AuthorID:   authorID,
		SourcePath: sourcePath,
	}

	var header []string
	for i, line := range strings.Split(decoded, "\n") {
		if i >= headerLines || len(header) == 2 {
			break
		}
		if line = strings.TrimSpace(line); line != "" {
			header = append(header, line)
		}
	}
	if len(header) > 0 {
		info.Title = truncate(header[0], maxTitleLen)
	}
	if len(header) > 1 {
		info.Author = truncate(header[1], maxAuthorLen)
	}
	if info.Title == "" {
		info.Title = "Work " + workID
	}
	if info.Author == "" {
		info.Author = "Author " + authorID
	}
	return info, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
