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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectType_Precedence(t *testing.T) {
	tests := []struct {
		typ  ObjectType
		want int
	}{
		{TypeCategory, 1},
		{TypeTax, 2},
		{TypeModifierList, 3},
		{TypeModifier, 4},
		{TypeItem, 5},
		{TypeItemVariation, 6},
		{TypeImage, 7},
		{TypeDiscount, 8},
		{ObjectType("SOMETHING_NEW"), 999},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Precedence())
		})
	}
}

func TestObject_Validate(t *testing.T) {
	now := time.Now()

	t.Run("item with payload is valid", func(t *testing.T) {
		obj := Object{
			ID:        "item-1",
			Type:      TypeItem,
			UpdatedAt: now,
			Item:      &ItemData{Name: "Latte"},
		}
		require.NoError(t, obj.Validate())
	})

	t.Run("non-deleted object without payload is invalid", func(t *testing.T) {
		obj := Object{ID: "item-2", Type: TypeItem, UpdatedAt: now}
		err := obj.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingPayload)
	})

	t.Run("deletion notification without payload is valid", func(t *testing.T) {
		obj := Object{ID: "item-3", Type: TypeItem, IsDeleted: true}
		require.NoError(t, obj.Validate())
	})

	t.Run("unknown type is invalid unless deleted", func(t *testing.T) {
		obj := Object{ID: "x", Type: ObjectType("FUTURE_TYPE")}
		assert.ErrorIs(t, obj.Validate(), ErrUnknownType)

		obj.IsDeleted = true
		assert.NoError(t, obj.Validate())
	})

	t.Run("empty id is invalid", func(t *testing.T) {
		obj := Object{Type: TypeTax, Tax: &TaxData{Name: "VAT"}}
		assert.Error(t, obj.Validate())
	})
}

func TestObject_ParentID(t *testing.T) {
	variation := Object{
		ID:            "var-1",
		Type:          TypeItemVariation,
		ItemVariation: &ItemVariationData{ItemID: "item-1", SKU: "SKU-1"},
	}
	parent, hasParent := variation.ParentID()
	require.True(t, hasParent)
	assert.Equal(t, "item-1", parent)

	parentType, ok := variation.ParentType()
	require.True(t, ok)
	assert.Equal(t, TypeItem, parentType)

	modifier := Object{
		ID:       "mod-1",
		Type:     TypeModifier,
		Modifier: &ModifierData{Name: "Oat milk", ModifierListID: "ml-1"},
	}
	parent, hasParent = modifier.ParentID()
	require.True(t, hasParent)
	assert.Equal(t, "ml-1", parent)

	item := Object{ID: "item-1", Type: TypeItem, Item: &ItemData{Name: "Latte"}}
	_, hasParent = item.ParentID()
	assert.False(t, hasParent)
}
