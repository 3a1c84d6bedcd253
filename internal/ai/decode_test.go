package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rankingShape struct {
	Upsell    []int64 `json:"upsell"`
	Crosssell []int64 `json:"crosssell"`
}

func TestDecodeObject(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		d := DecodeObject[rankingShape](`{"upsell":[1,2],"crosssell":[3]}`)
		require.True(t, d.OK())
		assert.Equal(t, []int64{1, 2}, d.Value.Upsell)
		assert.Equal(t, []int64{3}, d.Value.Crosssell)
	})

	t.Run("fenced on one line", func(t *testing.T) {
		d := DecodeObject[rankingShape]("```json {\"upsell\":[7],\"crosssell\":[8]} ```")
		require.True(t, d.OK(), "reason: %v", d.Reason)
		assert.Equal(t, []int64{7}, d.Value.Upsell)
		assert.Equal(t, []int64{8}, d.Value.Crosssell)
	})

	t.Run("fenced with prose around", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"upsell\":[7],\"crosssell\":[]}\n```\nHope that helps {not json}"
		d := DecodeObject[rankingShape](raw)
		require.True(t, d.OK(), "reason: %v", d.Reason)
		assert.Equal(t, []int64{7}, d.Value.Upsell)
		assert.Empty(t, d.Value.Crosssell)
	})

	t.Run("braces inside strings", func(t *testing.T) {
		raw := `{"note":"use } carefully","upsell":[4],"crosssell":[5]}`
		d := DecodeObject[rankingShape](raw)
		require.True(t, d.OK(), "reason: %v", d.Reason)
		assert.Equal(t, []int64{4}, d.Value.Upsell)
	})

	t.Run("empty response", func(t *testing.T) {
		d := DecodeObject[rankingShape]("   ")
		assert.Equal(t, Malformed, d.Status)
		assert.ErrorIs(t, d.Reason, ErrEmptyResponse)
	})

	t.Run("no json", func(t *testing.T) {
		d := DecodeObject[rankingShape]("sorry, I cannot help")
		assert.Equal(t, Malformed, d.Status)
		assert.Error(t, d.Reason)
	})

	t.Run("unbalanced", func(t *testing.T) {
		d := DecodeObject[rankingShape](`{"upsell":[1,2]`)
		assert.Equal(t, Malformed, d.Status)
	})

	t.Run("wrong types", func(t *testing.T) {
		d := DecodeObject[rankingShape](`{"upsell":"many"}`)
		assert.Equal(t, Malformed, d.Status)
	})
}

func TestDecodeArray(t *testing.T) {
	type edge struct {
		Tag     string   `json:"tag"`
		Related []string `json:"related"`
	}
	raw := "```\n[{\"tag\":\"t-shirt\",\"related\":[\"jeans\",\"sneakers\"]}]\n```"
	d := DecodeArray[[]edge](raw)
	require.True(t, d.OK(), "reason: %v", d.Reason)
	require.Len(t, d.Value, 1)
	assert.Equal(t, "t-shirt", d.Value[0].Tag)
	assert.Equal(t, []string{"jeans", "sneakers"}, d.Value[0].Related)
}

func TestExtractBalanced(t *testing.T) {
	got, ok := ExtractBalanced(`noise [1, [2, 3]] trailing ]`, '[', ']')
	require.True(t, ok)
	assert.Equal(t, `[1, [2, 3]]`, got)

	_, ok = ExtractBalanced(`no brackets here`, '[', ']')
	assert.False(t, ok)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`  {"a":1}  `))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json {\"a\":1} ```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```{\"a\":1}```"))
	assert.Equal(t, "malformed", Malformed.String())
	assert.Equal(t, "parsed", Parsed.String())
}
