package keyword

import (
	"sort"
	"strings"
	"sync"

	"github.com/pressroom/backend/internal/textsplit"
)

type Result struct {
	Chunk textsplit.Chunk
	Score int
}

type Index struct {
	mu     sync.RWMutex
	chunks []textsplit.Chunk
}

func NewIndex() *Index {
	return &Index{}
}

func (idx *Index) AddChunks(chunks []textsplit.Chunk) {
	idx.mu.Lock()
	idx.chunks = append(idx.chunks, chunks...)
	idx.mu.Unlock()
}

// Search returns at most k chunks that contain at least one query term,
// best first. Equal scores keep insertion order.
func (idx *Index) Search(query string, k int) []Result {
	return idx.search(query, k, func(textsplit.Chunk) bool { return true })
}

func (idx *Index) SearchOwned(ownerID, query string, k int) []Result {
	return idx.search(query, k, func(c textsplit.Chunk) bool { return c.OwnerID == ownerID })
}

func (idx *Index) search(query string, k int, keep func(textsplit.Chunk) bool) []Result {
	terms := strings.Fields(strings.ToLower(query))
	if k <= 0 || len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	var results []Result
	for _, c := range idx.chunks {
		if !keep(c) {
			continue
		}
		content := strings.ToLower(c.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				score++
			}
		}
		if score > 0 {
			results = append(results, Result{Chunk: c, Score: score})
		}
	}
	idx.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) Clear() {
	idx.mu.Lock()
	idx.chunks = nil
	idx.mu.Unlock()
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}
