// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package catalog holds movie metadata and content-based similarity.
// Movies are loaded from a JSON file; the pairwise similarity matrix is
// either loaded from a precomputed gob artifact or derived at load time
// from genre overlap and release-year proximity.
package catalog

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/reelfeed/reelfeed/internal/logging"
)

// ErrUnknownMovie is returned when a movie id is not in the catalog.
var ErrUnknownMovie = errors.New("unknown movie")

// fuzzyCutoff is the minimum token-set similarity for a fuzzy title match.
const fuzzyCutoff = 0.3

// Movie is a single catalog entry.
type Movie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	Overview    string   `json:"overview"`
	VoteAverage float64  `json:"vote_average"`
	VoteCount   int      `json:"vote_count"`
	ReleaseDate string   `json:"release_date"`
}

// year parses the release year, or 0 when unknown.
func (m *Movie) year() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	y, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return y
}

// ScoredMovie pairs a movie with a similarity score.
type ScoredMovie struct {
	Movie Movie   `json:"movie"`
	Score float64 `json:"score"`
}

// Stats summarizes the catalog.
type Stats struct {
	MovieCount int            `json:"movie_count"`
	Genres     map[string]int `json:"genres"`
	YearMin    int            `json:"year_min"`
	YearMax    int            `json:"year_max"`
}

// similarityArtifact is the on-disk format of a precomputed matrix.
type similarityArtifact struct {
	IDs    []int64
	Matrix [][]float64
}

// Catalog is an immutable movie catalog with a content similarity matrix.
// All query methods are safe for concurrent use.
type Catalog struct {
	movies  []Movie
	byID    map[int64]int
	byTitle map[string]int
	sim     [][]float64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Load reads movies from moviesPath and the similarity matrix from
// similarityPath. An empty similarityPath computes the matrix from
// movie metadata instead.
func Load(moviesPath, similarityPath string, seed int64) (*Catalog, error) {
	data, err := os.ReadFile(moviesPath)
	if err != nil {
		return nil, fmt.Errorf("read movies file: %w", err)
	}

	var movies []Movie
	if err := json.Unmarshal(data, &movies); err != nil {
		return nil, fmt.Errorf("parse movies file: %w", err)
	}
	if len(movies) == 0 {
		return nil, fmt.Errorf("movies file %s contains no movies", moviesPath)
	}

	c := &Catalog{
		movies:  movies,
		byID:    make(map[int64]int, len(movies)),
		byTitle: make(map[string]int, len(movies)),
		rng:     rand.New(rand.NewSource(seed)),
	}
	for i, m := range movies {
		c.byID[m.ID] = i
		c.byTitle[strings.ToLower(m.Title)] = i
	}

	if similarityPath != "" {
		if err := c.loadSimilarity(similarityPath); err != nil {
			return nil, err
		}
	} else {
		c.computeSimilarity()
	}

	logging.Info().
		Int("movies", len(movies)).
		Bool("precomputed_similarity", similarityPath != "").
		Msg("catalog loaded")
	return c, nil
}

// loadSimilarity reads a precomputed matrix and reorders it to match the
// catalog's movie order. Ids in the artifact that are missing from the
// catalog (or vice versa) are an error: the artifact is stale.
func (c *Catalog) loadSimilarity(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open similarity artifact: %w", err)
	}
	defer f.Close()

	var art similarityArtifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return fmt.Errorf("decode similarity artifact: %w", err)
	}
	if len(art.IDs) != len(c.movies) {
		return fmt.Errorf("similarity artifact covers %d movies, catalog has %d", len(art.IDs), len(c.movies))
	}

	// artifact row index -> catalog index
	remap := make([]int, len(art.IDs))
	for i, id := range art.IDs {
		idx, ok := c.byID[id]
		if !ok {
			return fmt.Errorf("similarity artifact references unknown movie %d", id)
		}
		remap[i] = idx
	}

	c.sim = make([][]float64, len(c.movies))
	for i := range c.sim {
		c.sim[i] = make([]float64, len(c.movies))
	}
	for i, row := range art.Matrix {
		for j, v := range row {
			c.sim[remap[i]][remap[j]] = v
		}
	}
	return nil
}

// computeSimilarity builds the matrix from genre overlap (Jaccard) and
// release-year proximity.
func (c *Catalog) computeSimilarity() {
	n := len(c.movies)
	c.sim = make([][]float64, n)
	for i := range c.sim {
		c.sim[i] = make([]float64, n)
		c.sim[i][i] = 1
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := contentSimilarity(&c.movies[i], &c.movies[j])
			c.sim[i][j] = s
			c.sim[j][i] = s
		}
	}
}

// contentSimilarity scores two movies in [0, 1]: genre Jaccard weighted
// 0.8, year proximity (linear falloff over 50 years) weighted 0.2.
func contentSimilarity(a, b *Movie) float64 {
	genre := jaccard(a.Genres, b.Genres)

	ya, yb := a.year(), b.year()
	if ya == 0 || yb == 0 {
		return genre
	}
	yearSim := 1 - math.Abs(float64(ya-yb))/50
	if yearSim < 0 {
		yearSim = 0
	}
	return 0.8*genre + 0.2*yearSim
}

// jaccard computes |A∩B| / |A∪B| over string sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Movies returns the number of catalog entries.
func (c *Catalog) Movies() int {
	return len(c.movies)
}

// MovieByID returns the movie with the given id, or ErrUnknownMovie.
func (c *Catalog) MovieByID(id int64) (Movie, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Movie{}, fmt.Errorf("%w: %d", ErrUnknownMovie, id)
	}
	return c.movies[idx], nil
}

// MovieGenres returns the genres for a movie id. Implements the rating
// store's GenreSource.
func (c *Catalog) MovieGenres(movieID int64) ([]string, bool) {
	idx, ok := c.byID[movieID]
	if !ok {
		return nil, false
	}
	return c.movies[idx].Genres, true
}

// FindByTitle resolves a title to a movie: exact case-insensitive match
// first, then best fuzzy token-set match above the cutoff.
func (c *Catalog) FindByTitle(title string) (Movie, bool) {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return Movie{}, false
	}
	if idx, ok := c.byTitle[lower]; ok {
		return c.movies[idx], true
	}

	queryTokens := tokenize(lower)
	if len(queryTokens) == 0 {
		return Movie{}, false
	}

	bestIdx, bestScore := -1, fuzzyCutoff
	for i := range c.movies {
		score := tokenSetSimilarity(queryTokens, tokenize(strings.ToLower(c.movies[i].Title)))
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return Movie{}, false
	}
	return c.movies[bestIdx], true
}

// tokenize splits a lowercased string into alphanumeric tokens.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens[cur.String()] = struct{}{}
			cur.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// tokenSetSimilarity is Jaccard over token sets.
func tokenSetSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// SimilarTo returns the n most similar movies to the given id by content
// similarity, descending. Unknown ids are an error.
func (c *Catalog) SimilarTo(movieID int64, n int) ([]ScoredMovie, error) {
	idx, ok := c.byID[movieID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMovie, movieID)
	}
	if n < 1 {
		return nil, nil
	}

	row := c.sim[idx]
	order := make([]int, 0, len(row)-1)
	for i := range row {
		if i != idx {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return row[order[a]] > row[order[b]]
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]ScoredMovie, 0, len(order))
	for _, i := range order {
		out = append(out, ScoredMovie{Movie: c.movies[i], Score: row[i]})
	}
	return out, nil
}

// SimilarToTitle fuzzy-resolves a title and returns its similar movies.
// A title that cannot be resolved yields an empty result, not an error.
func (c *Catalog) SimilarToTitle(title string, n int) ([]ScoredMovie, error) {
	m, ok := c.FindByTitle(title)
	if !ok {
		return nil, nil
	}
	return c.SimilarTo(m.ID, n)
}

// SearchByGenre returns up to n movies carrying the genre, sorted by
// vote average then vote count, descending.
func (c *Catalog) SearchByGenre(genre string, n int) []Movie {
	lower := strings.ToLower(genre)
	var out []Movie
	for i := range c.movies {
		for _, g := range c.movies[i].Genres {
			if strings.ToLower(g) == lower {
				out = append(out, c.movies[i])
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VoteAverage != out[j].VoteAverage {
			return out[i].VoteAverage > out[j].VoteAverage
		}
		return out[i].VoteCount > out[j].VoteCount
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RandomMovies samples up to n distinct movies using the catalog's
// seeded source.
func (c *Catalog) RandomMovies(n int) []Movie {
	if n > len(c.movies) {
		n = len(c.movies)
	}
	if n < 1 {
		return nil
	}

	c.rngMu.Lock()
	perm := c.rng.Perm(len(c.movies))
	c.rngMu.Unlock()

	out := make([]Movie, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, c.movies[idx])
	}
	return out
}

// Stats summarizes the catalog contents.
func (c *Catalog) Stats() Stats {
	st := Stats{
		MovieCount: len(c.movies),
		Genres:     make(map[string]int),
	}
	for i := range c.movies {
		for _, g := range c.movies[i].Genres {
			st.Genres[g]++
		}
		if y := c.movies[i].year(); y > 0 {
			if st.YearMin == 0 || y < st.YearMin {
				st.YearMin = y
			}
			if y > st.YearMax {
				st.YearMax = y
			}
		}
	}
	return st
}
