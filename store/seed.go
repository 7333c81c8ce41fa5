// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aleutianai/shopstream/datatypes"
)

//go:embed seed.yaml
var defaultSeed []byte

// seedFile is the on-disk shape of a catalog seed.
type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description"`
	Price         float64 `yaml:"price"`
	Category      string  `yaml:"category"`
	ImageURL      string  `yaml:"image_url"`
	InStock       bool    `yaml:"in_stock"`
	StockQuantity int     `yaml:"stock_quantity"`
	Rating        float64 `yaml:"rating"`
	ReviewsCount  int     `yaml:"reviews_count"`
}

// LoadSeedFile parses a YAML catalog seed from disk.
func LoadSeedFile(path string) ([]datatypes.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed %s: %w", path, err)
	}
	return parseSeed(data)
}

// DefaultSeed returns the catalog bundled into the binary. It backs the
// demo deployment when no seed file is configured.
func DefaultSeed() ([]datatypes.Product, error) {
	return parseSeed(defaultSeed)
}

func parseSeed(data []byte) ([]datatypes.Product, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	out := make([]datatypes.Product, 0, len(f.Products))
	for i, sp := range f.Products {
		if sp.ID == "" || sp.Name == "" {
			return nil, fmt.Errorf("catalog seed entry %d: id and name are required", i)
		}
		cat, ok := datatypes.ParseCategory(sp.Category)
		if !ok {
			cat = datatypes.CategoryOther
		}
		out = append(out, datatypes.Product{
			ID:            sp.ID,
			Name:          sp.Name,
			Description:   sp.Description,
			Price:         sp.Price,
			Category:      cat,
			ImageURL:      sp.ImageURL,
			InStock:       sp.InStock,
			StockQuantity: sp.StockQuantity,
			Rating:        sp.Rating,
			ReviewsCount:  sp.ReviewsCount,
		})
	}
	return out, nil
}

// Seed writes products into the store, replacing any existing entries with
// the same IDs. Idempotent across restarts.
func Seed(ctx context.Context, s CatalogStore, products []datatypes.Product) error {
	for _, p := range products {
		if err := s.PutProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}
