package app

import (
	"errors"

	"upsell-recommender/internal/catalog"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoSourceProducts     = errors.New("no products found")
	ErrPrecomputeInProgress = errors.New("precomputation already running for shop")
	ErrNoCatalog            = catalog.ErrCatalogNotFound
)
