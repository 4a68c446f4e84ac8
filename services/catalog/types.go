// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog defines the typed catalog object model shared by the
// remote client, the local store, and the sync engine.
//
// A catalog is a set of interrelated object types delivered by the remote
// source: categories, taxes, modifier lists, modifiers, items, item
// variations, images, and discounts. Objects reference each other by ID
// (a variation references its parent item, a modifier its modifier list),
// so insertion order matters; see SortByDependency.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ObjectType is the discriminant of the Object tagged union.
type ObjectType string

const (
	TypeCategory      ObjectType = "CATEGORY"
	TypeTax           ObjectType = "TAX"
	TypeModifierList  ObjectType = "MODIFIER_LIST"
	TypeModifier      ObjectType = "MODIFIER"
	TypeItem          ObjectType = "ITEM"
	TypeItemVariation ObjectType = "ITEM_VARIATION"
	TypeImage         ObjectType = "IMAGE"
	TypeDiscount      ObjectType = "DISCOUNT"
)

// AllTypes lists every known object type in dependency-precedence order.
var AllTypes = []ObjectType{
	TypeCategory,
	TypeTax,
	TypeModifierList,
	TypeModifier,
	TypeItem,
	TypeItemVariation,
	TypeImage,
	TypeDiscount,
}

// unknownTypePrecedence sorts objects of unrecognized types after all
// known types so a forward-compatible payload never blocks a batch.
const unknownTypePrecedence = 999

// typePrecedence is the fixed dependency ordering: parent types reconcile
// before the child types that reference them.
var typePrecedence = map[ObjectType]int{
	TypeCategory:      1,
	TypeTax:           2,
	TypeModifierList:  3,
	TypeModifier:      4,
	TypeItem:          5,
	TypeItemVariation: 6,
	TypeImage:         7,
	TypeDiscount:      8,
}

// Precedence returns the dependency precedence for a type.
// Unknown types sort last.
func (t ObjectType) Precedence() int {
	if p, ok := typePrecedence[t]; ok {
		return p
	}
	return unknownTypePrecedence
}

// Known reports whether the type is one of the seven catalog variants.
func (t ObjectType) Known() bool {
	_, ok := typePrecedence[t]
	return ok
}

// ErrMissingPayload indicates a non-deleted object arrived without the
// payload required for its declared type.
var ErrMissingPayload = errors.New("catalog object missing type payload")

// ErrUnknownType indicates an object type outside the known set.
var ErrUnknownType = errors.New("unknown catalog object type")

// Object is the tagged union over all catalog variants.
//
// Exactly one payload pointer should be non-nil, matching Type. Deletion
// notifications are exempt: a tombstone may arrive with no payload at all,
// carrying only ID, Type, and IsDeleted.
//
// Version is an opaque ordering hint from the server. It is never used as
// a conflict-resolution key; 0 means the server omitted it.
type Object struct {
	ID        string     `json:"id"`
	Type      ObjectType `json:"type"`
	UpdatedAt time.Time  `json:"updated_at"`
	Version   int64      `json:"version,omitempty"`
	IsDeleted bool       `json:"is_deleted,omitempty"`

	Category      *CategoryData      `json:"category_data,omitempty"`
	Tax           *TaxData           `json:"tax_data,omitempty"`
	ModifierList  *ModifierListData  `json:"modifier_list_data,omitempty"`
	Modifier      *ModifierData      `json:"modifier_data,omitempty"`
	Item          *ItemData          `json:"item_data,omitempty"`
	ItemVariation *ItemVariationData `json:"item_variation_data,omitempty"`
	Image         *ImageData         `json:"image_data,omitempty"`
	Discount      *DiscountData      `json:"discount_data,omitempty"`
}

// CategoryData is the payload for TypeCategory.
type CategoryData struct {
	Name string `json:"name"`
}

// TaxData is the payload for TypeTax.
type TaxData struct {
	Name       string `json:"name"`
	Percentage string `json:"percentage,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// ModifierListData is the payload for TypeModifierList.
type ModifierListData struct {
	Name          string `json:"name"`
	SelectionType string `json:"selection_type,omitempty"`
}

// ModifierData is the payload for TypeModifier.
//
// ModifierListID references the parent modifier list. ListLinked records
// whether that parent was present locally the last time this modifier was
// reconciled; it is re-resolved on every observed update.
type ModifierData struct {
	Name           string `json:"name"`
	ModifierListID string `json:"modifier_list_id,omitempty"`
	PriceAmount    int64  `json:"price_amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	ListLinked     bool   `json:"list_linked,omitempty"`
}

// ItemData is the payload for TypeItem.
type ItemData struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	CategoryID      string   `json:"category_id,omitempty"`
	TaxIDs          []string `json:"tax_ids,omitempty"`
	ModifierListIDs []string `json:"modifier_list_ids,omitempty"`
	ImageIDs        []string `json:"image_ids,omitempty"`
}

// ItemVariationData is the payload for TypeItemVariation.
//
// ItemID references the parent item. ItemLinked records whether that
// parent was present locally the last time this variation was reconciled.
// An unlinked variation is expected when the parent arrives in a later
// batch; the link is re-attempted on the variation's next update.
type ItemVariationData struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name,omitempty"`
	SKU         string `json:"sku,omitempty"`
	UPC         string `json:"upc,omitempty"`
	PriceAmount int64  `json:"price_amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	ItemLinked  bool   `json:"item_linked,omitempty"`
}

// ImageData is the payload for TypeImage. Byte caching of the image
// content is out of scope; only the reference is stored.
type ImageData struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// DiscountData is the payload for TypeDiscount.
type DiscountData struct {
	Name         string `json:"name"`
	DiscountType string `json:"discount_type,omitempty"`
	Percentage   string `json:"percentage,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// HasPayload reports whether the payload matching Type is present.
func (o *Object) HasPayload() bool {
	switch o.Type {
	case TypeCategory:
		return o.Category != nil
	case TypeTax:
		return o.Tax != nil
	case TypeModifierList:
		return o.ModifierList != nil
	case TypeModifier:
		return o.Modifier != nil
	case TypeItem:
		return o.Item != nil
	case TypeItemVariation:
		return o.ItemVariation != nil
	case TypeImage:
		return o.Image != nil
	case TypeDiscount:
		return o.Discount != nil
	default:
		return false
	}
}

// Validate checks structural invariants.
//
// Deletion notifications are valid without a payload; everything else
// must carry the payload matching its type.
func (o *Object) Validate() error {
	if o.ID == "" {
		return errors.New("catalog object id must not be empty")
	}
	if o.Type == "" {
		return errors.New("catalog object type must not be empty")
	}
	if o.IsDeleted {
		return nil
	}
	if !o.Type.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownType, o.Type)
	}
	if !o.HasPayload() {
		return fmt.Errorf("%w: %s %s", ErrMissingPayload, o.Type, o.ID)
	}
	return nil
}

// ParentID returns the declared parent reference for child types, or
// ("", false) for types without a parent link.
func (o *Object) ParentID() (string, bool) {
	switch o.Type {
	case TypeItemVariation:
		if o.ItemVariation != nil {
			return o.ItemVariation.ItemID, true
		}
		return "", true
	case TypeModifier:
		if o.Modifier != nil {
			return o.Modifier.ModifierListID, true
		}
		return "", true
	default:
		return "", false
	}
}

// ParentType returns the parent object type for child types.
func (o *Object) ParentType() (ObjectType, bool) {
	switch o.Type {
	case TypeItemVariation:
		return TypeItem, true
	case TypeModifier:
		return TypeModifierList, true
	default:
		return "", false
	}
}
