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

import "sort"

// SortByDependency orders a batch so parent types are reconciled before
// the child types that reference them.
//
// Description:
//
//	Returns a new slice sorted by the fixed type-precedence table
//	(Category < Tax < ModifierList < Modifier < Item < ItemVariation <
//	Image < Discount; unknown types last). The sort is stable: objects
//	of equal precedence keep their arrival order, so two updates to the
//	same object within one batch apply in the order they were delivered.
//
//	This guarantees that any object whose parent is in the same batch
//	sees that parent already processed, which removes the common class
//	of orphaned-reference bugs without a second repair pass.
//
// Inputs:
//
//	objects - The unordered batch. Not modified.
//
// Outputs:
//
//	[]Object - A sorted copy.
//
// Thread Safety: Safe for concurrent use (pure function).
func SortByDependency(objects []Object) []Object {
	sorted := make([]Object, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Type.Precedence() < sorted[j].Type.Precedence()
	})
	return sorted
}
