// ABOUTME: Tests for the in-memory preference store
// ABOUTME: Verifies defaults, change notification, and no-op writes

package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_Defaults(t *testing.T) {
	m := NewMemory(map[string]bool{KeyStorageEnabled: true})
	assert.True(t, m.GetBool(KeyStorageEnabled))
	assert.False(t, m.GetBool(KeyAgreementAccepted))
}

func TestMemory_SetAndGet(t *testing.T) {
	m := NewMemory(nil)
	m.SetBool(KeyAgreementAccepted, true)
	assert.True(t, m.GetBool(KeyAgreementAccepted))
}

func TestMemory_WatchFiresOnChange(t *testing.T) {
	m := NewMemory(nil)

	var got []bool
	m.Watch(KeyStorageEnabled, func(v bool) { got = append(got, v) })

	m.SetBool(KeyStorageEnabled, true)
	m.SetBool(KeyStorageEnabled, true) // no change, no callback
	m.SetBool(KeyStorageEnabled, false)

	assert.Equal(t, []bool{true, false}, got)
}

func TestMemory_WatchIsPerKey(t *testing.T) {
	m := NewMemory(nil)

	calls := 0
	m.Watch(KeyStorageEnabled, func(bool) { calls++ })

	m.SetBool(KeyAgreementAccepted, true)
	assert.Zero(t, calls)
}
