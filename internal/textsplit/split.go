package textsplit

import "fmt"

type Chunk struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	OwnerID  string `json:"owner_id,omitempty"`
	Content  string `json:"content"`
	Index    int    `json:"index"`
}

func ChunkID(parentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, index)
}

// Split returns nil when text is empty or maxLen is not positive. The last
// chunk may be shorter than maxLen.
func Split(parentID, text string, maxLen int) []Chunk {
	if maxLen <= 0 || text == "" {
		return nil
	}

	runes := []rune(text)
	chunks := make([]Chunk, 0, (len(runes)+maxLen-1)/maxLen)
	for start, i := 0, 0; start < len(runes); start, i = start+maxLen, i+1 {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:       ChunkID(parentID, i),
			ParentID: parentID,
			Content:  string(runes[start:end]),
			Index:    i,
		})
	}
	return chunks
}
