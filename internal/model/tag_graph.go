package model

import (
	"time"

	"gorm.io/datatypes"
)

// TagGraphEdge maps one tag to its ordered related tags.
type TagGraphEdge struct {
	TagName   string                      `gorm:"primaryKey;size:128" json:"tag_name"`
	Children  datatypes.JSONSlice[string] `gorm:"type:json" json:"children"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (TagGraphEdge) TableName() string {
	return "tag_graph"
}
