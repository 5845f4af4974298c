package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_FiveThousandCharsAtTwoThousand(t *testing.T) {
	text := strings.Repeat("a", 5000)

	chunks := Split("doc-1", text, 2000)
	require.Len(t, chunks, 3)

	wantLens := []int{2000, 2000, 1000}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "doc-1", c.ParentID)
		assert.Equal(t, ChunkID("doc-1", i), c.ID)
		assert.Len(t, c.Content, wantLens[i])
	}
	assert.Equal(t, "doc-1_chunk_2", chunks[2].ID)
}

func TestSplit_RoundTrip(t *testing.T) {
	texts := []string{
		"x",
		"Acme opened a plant.\n\nIt employs 120 people.",
		strings.Repeat("Grüße aus Köln – ", 37),
		"日本語のテキストも分割できます。",
	}
	for _, text := range texts {
		for _, maxLen := range []int{1, 3, 7, 64, 10000} {
			var sb strings.Builder
			for _, c := range Split("p", text, maxLen) {
				assert.LessOrEqual(t, len([]rune(c.Content)), maxLen)
				sb.WriteString(c.Content)
			}
			assert.Equal(t, text, sb.String(), "maxLen=%d", maxLen)
		}
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	chunks := Split("p", "äöüß", 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, "äö", chunks[0].Content)
	assert.Equal(t, "üß", chunks[1].Content)
}

func TestSplit_Degenerate(t *testing.T) {
	assert.Nil(t, Split("p", "", 10))
	assert.Nil(t, Split("p", "text", 0))
	assert.Nil(t, Split("p", "text", -5))
}
