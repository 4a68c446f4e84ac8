// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByDependency_ParentsFirst(t *testing.T) {
	batch := []Object{
		{ID: "var-1", Type: TypeItemVariation, ItemVariation: &ItemVariationData{ItemID: "item-1"}},
		{ID: "disc-1", Type: TypeDiscount, Discount: &DiscountData{Name: "Happy hour"}},
		{ID: "item-1", Type: TypeItem, Item: &ItemData{Name: "Latte", CategoryID: "cat-1"}},
		{ID: "mod-1", Type: TypeModifier, Modifier: &ModifierData{Name: "Oat", ModifierListID: "ml-1"}},
		{ID: "cat-1", Type: TypeCategory, Category: &CategoryData{Name: "Drinks"}},
		{ID: "ml-1", Type: TypeModifierList, ModifierList: &ModifierListData{Name: "Milk"}},
		{ID: "tax-1", Type: TypeTax, Tax: &TaxData{Name: "VAT"}},
		{ID: "img-1", Type: TypeImage, Image: &ImageData{URL: "https://example.com/i.png"}},
	}

	sorted := SortByDependency(batch)

	gotIDs := make([]string, len(sorted))
	for i, o := range sorted {
		gotIDs[i] = o.ID
	}
	assert.Equal(t, []string{"cat-1", "tax-1", "ml-1", "mod-1", "item-1", "var-1", "img-1", "disc-1"}, gotIDs)

	// Input must not be mutated.
	assert.Equal(t, "var-1", batch[0].ID)
}

func TestSortByDependency_StableWithinType(t *testing.T) {
	// Two updates to the same item in one batch must keep arrival order.
	batch := []Object{
		{ID: "item-1", Type: TypeItem, Version: 1, Item: &ItemData{Name: "Latte"}},
		{ID: "var-1", Type: TypeItemVariation, ItemVariation: &ItemVariationData{ItemID: "item-1"}},
		{ID: "item-1", Type: TypeItem, Version: 2, Item: &ItemData{Name: "Latte (new)"}},
	}

	sorted := SortByDependency(batch)

	require.Len(t, sorted, 3)
	assert.Equal(t, int64(1), sorted[0].Version)
	assert.Equal(t, int64(2), sorted[1].Version)
	assert.Equal(t, TypeItemVariation, sorted[2].Type)
}

func TestSortByDependency_UnknownTypesLast(t *testing.T) {
	batch := []Object{
		{ID: "future-1", Type: ObjectType("FUTURE_TYPE")},
		{ID: "disc-1", Type: TypeDiscount, Discount: &DiscountData{Name: "Sale"}},
		{ID: "cat-1", Type: TypeCategory, Category: &CategoryData{Name: "Food"}},
	}

	sorted := SortByDependency(batch)

	assert.Equal(t, "cat-1", sorted[0].ID)
	assert.Equal(t, "disc-1", sorted[1].ID)
	assert.Equal(t, "future-1", sorted[2].ID)
}

func TestSortByDependency_EmptyBatch(t *testing.T) {
	assert.Empty(t, SortByDependency(nil))
}
