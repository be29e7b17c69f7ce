package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	text := "The Transformer uses self-attention. The Transformer beats LSTM and RNN, see Table 2."
	assert.Equal(t, []string{"Transformer", "self-attention", "LSTM", "Table"}, Extract(text, 10))
	assert.Equal(t, []string{"Transformer"}, Extract(text, 1))
	assert.Empty(t, Extract("all lower case words here", 10))
}

func TestFromText(t *testing.T) {
	got := FromText("Neural Machine Translation with BERT and GPT uses fine-tuning.")
	assert.Contains(t, got, "Neural Machine Translation")
	assert.Contains(t, got, "BERT")
	assert.Contains(t, got, "fine-tuning")
	assert.NotContains(t, got, "GPT")
}

func TestBuildGraph(t *testing.T) {
	chunks := []string{
		"Graph Neural Networks and BERT use fine-tuning. Graph Neural Networks again.",
		"BERT relies on fine-tuning.",
		"Nothing capitalized here.",
	}
	g := BuildGraph(chunks, 20)

	require.NotEmpty(t, g.Nodes)
	sizes := map[string]int{}
	for _, n := range g.Nodes {
		sizes[n.ID] = n.Size
		assert.Equal(t, "concept", n.Type)
	}
	assert.Equal(t, 2, sizes["Graph Neural Networks"])
	assert.Equal(t, 2, sizes["BERT"])
	assert.Equal(t, 2, sizes["fine-tuning"])

	weights := map[[2]string]int{}
	for _, e := range g.Edges {
		assert.NotEqual(t, e.Source, e.Target)
		weights[[2]string{e.Source, e.Target}] = e.Weight
	}
	assert.Equal(t, 2, weights[[2]string{"fine-tuning", "BERT"}])
	assert.Equal(t, 1, weights[[2]string{"Graph Neural Networks", "BERT"}])

	limited := BuildGraph(chunks, 1)
	require.Len(t, limited.Nodes, 1)
	assert.Equal(t, "Graph Neural Networks", limited.Nodes[0].ID)
	assert.Empty(t, limited.Edges)
}
