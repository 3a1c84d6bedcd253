package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"upsell-recommender/internal/ai"
)

// MaxRelatedPerTag caps the related list stored per tag.
const MaxRelatedPerTag = 5

type tagGraphEntry struct {
	Tag     string   `json:"tag"`
	Related []string `json:"related"`
}

// TagGraphBuilder asks the oracle, in one call, which tags are bought together.
type TagGraphBuilder struct {
	oracle ai.RankingOracle
	log    zerolog.Logger
}

func NewTagGraphBuilder(oracle ai.RankingOracle, log zerolog.Logger) *TagGraphBuilder {
	return &TagGraphBuilder{oracle: oracle, log: log}
}

// Build returns the raw related-tag mapping for tags. ok is false when the oracle
// failed or answered with something unparseable; the graph is then empty.
func (b *TagGraphBuilder) Build(ctx context.Context, tags []string) (graph map[string][]string, ok bool) {
	graph = map[string][]string{}
	if len(tags) == 0 {
		return graph, true
	}

	raw, err := b.oracle.Complete(ctx, buildTagGraphPrompt(tags))
	if err != nil {
		b.log.Warn().Err(err).Int("tags", len(tags)).Msg("tag graph oracle call failed, continuing with empty graph")
		return graph, false
	}

	decoded := ai.DecodeArray[[]tagGraphEntry](raw)
	if !decoded.OK() {
		b.log.Warn().Err(decoded.Reason).Int("tags", len(tags)).Msg("tag graph response malformed, continuing with empty graph")
		return graph, false
	}
	for _, entry := range decoded.Value {
		tag := strings.TrimSpace(entry.Tag)
		if tag == "" {
			continue
		}
		graph[tag] = append(graph[tag], entry.Related...)
	}
	return graph, true
}

func buildTagGraphPrompt(tags []string) string {
	var b strings.Builder
	b.WriteString("You build a product relationship graph for an online store.\n")
	b.WriteString("For every tag in the list below, choose 3 to 5 related tags that customers buy together with it (cross-sell affinity).\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- related tags MUST be copied exactly from the provided tag list; never invent tags\n")
	b.WriteString("- exclude attribute tags such as colors, materials, sizes and price or vendor tags\n")
	b.WriteString("- exclude tags of the same category as the source tag; prefer complementary products\n")
	b.WriteString("- never relate a tag to itself\n\n")
	b.WriteString("Tags:\n")
	for _, t := range tags {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nRespond ONLY with a JSON array, no prose and no markdown, in this exact shape:\n")
	b.WriteString(`[{"tag": "<tag from list>", "related": ["<tag from list>", "..."]}]`)
	return b.String()
}

// ValidateTagGraph keeps only keys and related tags from known, drops self
// references and duplicates, caps each list at maxRelated and removes keys whose
// list ends up empty.
func ValidateTagGraph(graph map[string][]string, known []string, maxRelated int) map[string][]string {
	if maxRelated <= 0 {
		maxRelated = MaxRelatedPerTag
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, t := range known {
		knownSet[t] = struct{}{}
	}

	out := make(map[string][]string, len(graph))
	for tag, related := range graph {
		if _, ok := knownSet[tag]; !ok {
			continue
		}
		seen := map[string]struct{}{tag: {}}
		kept := make([]string, 0, len(related))
		for _, r := range related {
			r = strings.TrimSpace(r)
			if _, ok := knownSet[r]; !ok {
				continue
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			kept = append(kept, r)
			if len(kept) == maxRelated {
				break
			}
		}
		if len(kept) > 0 {
			out[tag] = kept
		}
	}
	return out
}
