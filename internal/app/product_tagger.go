package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"upsell-recommender/internal/ai"
	"upsell-recommender/internal/metrics"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/tagging"
)

// defaultTag is the last resort primary tag for products with neither category
// nor usable title words.
const defaultTag = "general"

type tagAssignment struct {
	ID  model.ID `json:"id"`
	Tag string   `json:"tag"`
}

// ProductTagger assigns the primary tag and embedding of products during
// precomputation.
type ProductTagger struct {
	oracle   ai.RankingOracle
	embedder ai.Embedder
	dim      int
	version  string
	log      zerolog.Logger
}

func NewProductTagger(oracle ai.RankingOracle, embedder ai.Embedder, dim int, version string, log zerolog.Logger) *ProductTagger {
	if dim <= 0 {
		dim = 768
	}
	if version == "" {
		version = "v1"
	}
	return &ProductTagger{oracle: oracle, embedder: embedder, dim: dim, version: version, log: log}
}

// Version is the embedding version written for provider embeddings. Products
// embedded locally carry "hash-" + Version and are redone on the next run.
func (t *ProductTagger) Version() string {
	return t.version
}

// Apply sets Tag, Embedding and EmbeddingVersion on every product of batch.
// Oracle and embedder failures are absorbed: affected products get the
// category-derived tag and a hash embedding. fellBack reports whether that
// happened for any product.
func (t *ProductTagger) Apply(ctx context.Context, batch []model.Product) (fellBack bool) {
	if len(batch) == 0 {
		return false
	}

	tags := t.oracleTags(ctx, batch)
	for i := range batch {
		tag, ok := tags[batch[i].ID]
		if !ok {
			fellBack = true
			tag = fallbackTag(batch[i])
		}
		batch[i].Tag = tag
	}

	vectors := t.embed(ctx, batch)
	for i := range batch {
		if vectors != nil && len(vectors[i]) > 0 {
			batch[i].Embedding = tagging.FitDimension(vectors[i], t.dim)
			batch[i].EmbeddingVersion = t.version
			continue
		}
		fellBack = true
		batch[i].Embedding = tagging.HashEmbedding(embeddingText(batch[i]), t.dim)
		batch[i].EmbeddingVersion = "hash-" + t.version
	}

	if fellBack {
		metrics.PrecomputeBatchFallbacks.Inc()
	}
	return fellBack
}

// oracleTags asks for one primary tag per product. Missing or blank answers are
// simply absent from the result.
func (t *ProductTagger) oracleTags(ctx context.Context, batch []model.Product) map[int64]string {
	out := make(map[int64]string, len(batch))
	if t.oracle == nil {
		return out
	}
	raw, err := t.oracle.Complete(ctx, buildTaggingPrompt(batch))
	if err != nil {
		t.log.Warn().Err(err).Int("products", len(batch)).Msg("tagging oracle call failed, using category tags")
		return out
	}
	decoded := ai.DecodeArray[[]tagAssignment](raw)
	if !decoded.OK() {
		t.log.Warn().Err(decoded.Reason).Int("products", len(batch)).Msg("tagging response malformed, using category tags")
		return out
	}
	for _, a := range decoded.Value {
		tag := tagging.Canonical(a.Tag)
		if a.ID == 0 || tag == "" || tag == model.PlaceholderTag {
			continue
		}
		if _, dup := out[int64(a.ID)]; !dup {
			out[int64(a.ID)] = tag
		}
	}
	return out
}

func (t *ProductTagger) embed(ctx context.Context, batch []model.Product) [][]float32 {
	if t.embedder == nil {
		return nil
	}
	texts := make([]string, 0, len(batch))
	for _, p := range batch {
		texts = append(texts, embeddingText(p))
	}
	vectors, err := t.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		t.log.Warn().Err(err).Int("products", len(batch)).Msg("embedding call failed, using hash embeddings")
		return nil
	}
	if len(vectors) != len(batch) {
		t.log.Warn().Int("expected", len(batch)).Int("got", len(vectors)).Msg("embedding count mismatch, using hash embeddings")
		return nil
	}
	return vectors
}

func fallbackTag(p model.Product) string {
	if tag := tagging.CategoryTag(p.Category, p.Title); tag != "" {
		return tag
	}
	return defaultTag
}

func embeddingText(p model.Product) string {
	parts := []string{p.Title, p.Category, p.Vendor}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func buildTaggingPrompt(batch []model.Product) string {
	var b strings.Builder
	b.WriteString("Assign exactly one primary product-type tag to each product below.\n")
	b.WriteString("A tag is a short lowercase noun phrase naming what the product is (for example t-shirt, jeans, sneakers), words joined with dashes.\n")
	b.WriteString("Do not use colors, materials, sizes, brands or prices as tags. Products of the same type must share the same tag.\n\n")
	b.WriteString("Products (id | title | category | vendor | hints):\n")
	for _, p := range batch {
		hints := tagging.Normalize(tagging.Attributes{
			Title:    p.Title,
			Category: p.Category,
			Vendor:   p.Vendor,
			Price:    p.Price,
			Tags:     p.SourceTags,
		})
		fmt.Fprintf(&b, "%d | %s | %s | %s | %s\n", p.ID, p.Title, p.Category, p.Vendor, strings.Join(hints, ", "))
	}
	b.WriteString("\nRespond ONLY with a JSON array, no prose and no markdown, in this exact shape:\n")
	b.WriteString(`[{"id": 123, "tag": "t-shirt"}]`)
	return b.String()
}
