package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusActive = "active"

	// PlaceholderTag is the primary tag of a product that has not been precomputed yet.
	PlaceholderTag = "untagged"
)

type Variant struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	InventoryQuantity int     `json:"inventory_quantity"`
}

// Product is one catalog item of a shop. Tag holds exactly one primary tag and is
// the join key into the tag graph.
type Product struct {
	ID               int64                        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ShopID           string                       `gorm:"size:128;not null;index" json:"shop_id"`
	Title            string                       `gorm:"size:512;not null" json:"title"`
	Category         string                       `gorm:"size:128;index" json:"category"`
	Vendor           string                       `gorm:"size:128" json:"vendor"`
	Price            float64                      `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Variants         datatypes.JSONSlice[Variant] `gorm:"type:json" json:"variants"`
	Status           string                       `gorm:"size:32;not null;default:active" json:"status"`
	Stock            int                          `gorm:"not null;default:0" json:"stock"`
	Tag              string                       `gorm:"column:tags;size:128;not null;index" json:"tags"`
	MerchantScore    float64                      `gorm:"not null;default:0" json:"merchant_score"`
	PurchaseScore    float64                      `gorm:"not null;default:0" json:"purchase_score"`
	Embedding        datatypes.JSONSlice[float32] `gorm:"type:json" json:"-"`
	EmbeddingVersion string                       `gorm:"size:64" json:"embedding_version"`
	// SourceTags are the storefront tags of the catalog export. Tagging hints only.
	SourceTags       []string                     `gorm:"-" json:"-"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// TotalInventory sums the inventory quantity of every variant.
func TotalInventory(variants []Variant) int {
	total := 0
	for _, v := range variants {
		total += v.InventoryQuantity
	}
	return total
}

func (p *Product) IsEligible() bool {
	return p.Status == StatusActive && p.Stock > 0
}
