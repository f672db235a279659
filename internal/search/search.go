package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"gorm.io/gorm"

	"galleria/internal/database"
)

const (
	DefaultMaxResults = 10

	// candidateLimit bounds how many matching rows are scored in memory.
	candidateLimit = 500
)

// Field weights of a keyword hit.
const (
	weightTagExact    = 3.0
	weightTag         = 2.0
	weightCategory    = 2.0
	weightLocation    = 2.0
	weightCamera      = 1.0
	weightDescription = 1.5
	weightFuzzy       = 0.5
)

type Hit struct {
	Image *database.Image
	Score float64
}

type Searcher struct {
	DB         *gorm.DB
	Tokenizer  Tokenizer
	MaxResults int
}

func New(db *gorm.DB, t Tokenizer, maxResults int) *Searcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{DB: db, Tokenizer: t, MaxResults: maxResults}
}

// Search returns the extracted keywords and the best scoring images visible
// to v. No keywords means no results.
func (s *Searcher) Search(ctx context.Context, v database.Viewer, query string) ([]string, []Hit, error) {
	keywords := Keywords(s.Tokenizer, query)
	if len(keywords) == 0 {
		return keywords, []Hit{}, nil
	}

	var candidates []database.Image
	err := s.DB.WithContext(ctx).
		Scopes(database.Visible(v), database.WithRelations, matchAny(keywords)).
		Order("images.upload_time DESC").
		Order("images.id DESC").
		Limit(candidateLimit).
		Find(&candidates).Error
	if err != nil {
		return nil, nil, fmt.Errorf("search candidates: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	for i := range candidates {
		if score := Score(&candidates[i], keywords); score > 0 {
			hits = append(hits, Hit{Image: &candidates[i], Score: score})
		}
	}

	// Candidates arrive newest first, so ties keep that order.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > s.MaxResults {
		hits = hits[:s.MaxResults]
	}
	return keywords, hits, nil
}

// matchAny keeps images where any keyword occurs in a tag, the category,
// the location, the camera model or the description. FOLD applies the same
// lowering as Score, so non-ASCII letters match case-insensitively.
func matchAny(keywords []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		clauses := make([]string, 0, len(keywords))
		args := make([]interface{}, 0, len(keywords)*5)
		for _, kw := range keywords {
			like := "%" + escapeLike(kw) + "%"
			clauses = append(clauses,
				`images.id IN (SELECT it.image_id FROM image_tags it JOIN tags t ON t.id = it.tag_id WHERE FOLD(t.name) LIKE ? ESCAPE '\')`,
				`images.category_id IN (SELECT c.id FROM categories c WHERE FOLD(c.name) LIKE ? ESCAPE '\')`,
				`FOLD(IFNULL(images.location, '')) LIKE ? ESCAPE '\'`,
				`FOLD(IFNULL(images.camera_model, '')) LIKE ? ESCAPE '\'`,
				`FOLD(IFNULL(images.description, '')) LIKE ? ESCAPE '\'`,
			)
			args = append(args, like, like, like, like, like)
		}
		return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Score sums, per keyword, the weights of the fields it occurs in. A
// description that only fuzzily contains the keyword earns a small bonus.
func Score(img *database.Image, keywords []string) float64 {
	var score float64
	for _, kw := range keywords {
		for _, t := range img.Tags {
			name := strings.ToLower(t.Name)
			if name == kw {
				score += weightTagExact
				break
			}
			if strings.Contains(name, kw) {
				score += weightTag
				break
			}
		}
		if img.Category != nil && strings.Contains(strings.ToLower(img.Category.Name), kw) {
			score += weightCategory
		}
		if img.Location != nil && strings.Contains(strings.ToLower(*img.Location), kw) {
			score += weightLocation
		}
		if img.CameraModel != nil && strings.Contains(strings.ToLower(*img.CameraModel), kw) {
			score += weightCamera
		}

		desc := strings.ToLower(img.Description)
		switch {
		case desc == "":
		case strings.Contains(desc, kw):
			score += weightDescription
		case fuzzy.MatchNormalizedFold(kw, desc):
			score += weightFuzzy
		}
	}
	return score
}
