package feed

import (
	"math"
	"sort"
	"time"

	"github.com/kinship-app/backend/internal/models"
)

// jitterSource yields the random ranking term. Satisfied by *rand.Rand in
// tests and by the service's locked source, which serializes access because
// feed pages compose concurrently.
type jitterSource interface {
	Float64() float64
}

// Ranking weights. The affinity bonus dominates the sum of the other two
// terms so followed-author posts always sort ahead of trending backfill;
// the random term only perturbs ordering within a partition.
const (
	affinityBonus   = 3.0
	recencyHalfLife = 24.0 // hours
	jitterAmplitude = 0.25
)

// score computes the ranking score for one post:
// affinity_bonus + recency_decay + small_random_term.
func score(post *models.Post, followed bool, now time.Time, rng jitterSource) float64 {
	s := 0.0
	if followed {
		s += affinityBonus
	}
	ageHours := now.Sub(post.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	s += math.Exp2(-ageHours / recencyHalfLife)
	s += rng.Float64() * jitterAmplitude
	return s
}

// rankPosts orders posts by descending score. The sort is stable, so posts
// with equal scores keep their fetch order (newest first within the
// followed partition, engagement order within the trending partition).
func rankPosts(posts []models.Post, followed map[string]bool, now time.Time, rng jitterSource) []models.Post {
	type scored struct {
		post  models.Post
		score float64
	}
	ranked := make([]scored, len(posts))
	for i, p := range posts {
		ranked[i] = scored{post: p, score: score(&p, followed[p.UserID], now, rng)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	out := make([]models.Post, len(ranked))
	for i, s := range ranked {
		out[i] = s.post
	}
	return out
}

// dedupe drops repeated post IDs, keeping first occurrence.
func dedupe(posts []models.Post) []models.Post {
	seen := make(map[string]bool, len(posts))
	out := posts[:0]
	for _, p := range posts {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
