// Package catalog loads raw shop catalogs for precomputation.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"upsell-recommender/internal/model"
)

var ErrCatalogNotFound = errors.New("catalog not found")

// Item is one product as exported by the storefront.
type Item struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	ProductType string        `json:"product_type"`
	Category    string        `json:"category"`
	Vendor      string        `json:"vendor"`
	Status      string        `json:"status"`
	Price       *Decimal      `json:"price"`
	Tags        TagList       `json:"tags"`
	Variants    []ItemVariant `json:"variants"`
}

type ItemVariant struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Price             Decimal `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
}

// ToProduct converts the export row into a product of shopID. Stock is the sum
// of the variant inventory; price falls back to the first variant.
func (it Item) ToProduct(shopID string) model.Product {
	variants := make([]model.Variant, 0, len(it.Variants))
	for _, v := range it.Variants {
		variants = append(variants, model.Variant{
			ID:                v.ID,
			Title:             v.Title,
			Price:             float64(v.Price),
			InventoryQuantity: v.InventoryQuantity,
		})
	}

	price := 0.0
	switch {
	case it.Price != nil:
		price = float64(*it.Price)
	case len(variants) > 0:
		price = variants[0].Price
	}

	category := it.Category
	if strings.TrimSpace(category) == "" {
		category = it.ProductType
	}
	status := strings.ToLower(strings.TrimSpace(it.Status))
	if status == "" {
		status = model.StatusActive
	}

	return model.Product{
		ID:         it.ID,
		ShopID:     shopID,
		Title:      strings.TrimSpace(it.Title),
		Category:   strings.TrimSpace(category),
		Vendor:     strings.TrimSpace(it.Vendor),
		Price:      price,
		Variants:   variants,
		Status:     status,
		Stock:      model.TotalInventory(variants),
		Tag:        model.PlaceholderTag,
		SourceTags: []string(it.Tags),
	}
}

// FileSource reads <dir>/<shop_id>.json. The file holds either {"products": [...]}
// or a bare array.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Load(ctx context.Context, shopID string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(filepath.Clean(shopID))
	if name == "." || name == string(filepath.Separator) || name != shopID {
		return nil, fmt.Errorf("invalid shop id %q", shopID)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for shop %s", ErrCatalogNotFound, shopID)
		}
		return nil, fmt.Errorf("read catalog failed: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a catalog export and drops rows without an id.
func Parse(raw []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(raw)
	var items []Item
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode catalog failed: %w", err)
		}
	} else {
		var doc struct {
			Products []Item `json:"products"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog failed: %w", err)
		}
		items = doc.Products
	}

	out := items[:0]
	for _, it := range items {
		if it.ID != 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

// Decimal accepts prices written as numbers or strings.
type Decimal float64

func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*d = Decimal(f)
	return nil
}

// TagList accepts a comma separated string or an array of strings.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = nil
		return nil
	}
	var list []string
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
	} else {
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return err
		}
		list = strings.Split(joined, ",")
	}
	out := make(TagList, 0, len(list))
	for _, tag := range list {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	*t = out
	return nil
}
