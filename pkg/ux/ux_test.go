// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainToggle(t *testing.T) {
	Plain(true)
	defer Plain(false)
	assert.True(t, IsPlain())

	Plain(false)
	assert.False(t, IsPlain())
}

func TestCountLine_Plain(t *testing.T) {
	Plain(true)
	defer Plain(false)

	line := CountLine(
		CountPair{Label: "inserted", Count: 3},
		CountPair{Label: "deleted", Count: 0},
	)
	assert.Equal(t, "inserted=3 deleted=0", line)
}

func TestSpinner_PlainLifecycle(t *testing.T) {
	Plain(true)
	defer Plain(false)

	spin := NewSpinner("working")
	spin.Start()
	spin.Start() // second start is a no-op
	spin.UpdateMessage("still working")
	spin.Stop()
	spin.Stop() // second stop is a no-op
}

func TestSpinner_StyledStopsCleanly(t *testing.T) {
	Plain(false)

	spin := NewSpinner("working")
	spin.Start()
	spin.UpdateMessage("page 2")
	spin.Stop()
}
