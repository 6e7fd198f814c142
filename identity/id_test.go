// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	t.Run("no-prefix", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		id, err := NewID()
		require.NoError(err)
		assert.NotEmpty(id)
		assert.False(strings.Contains(id, "_"))
	})
	t.Run("with-prefix", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		id, err := NewID(WithPrefix("st"))
		require.NoError(err)
		assert.True(strings.HasPrefix(id, "st_"))
	})
	t.Run("unique", func(t *testing.T) {
		require := require.New(t)
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			id, err := NewID()
			require.NoError(err)
			require.False(seen[id])
			seen[id] = true
		}
	})
}
