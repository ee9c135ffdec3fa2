package rules

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRuleStoreImplementations verifies every store satisfies RuleStore
func TestRuleStoreImplementations(t *testing.T) {
	var _ RuleStore = (*InMemoryRuleStore)(nil)
	var _ RuleStore = (*PostgresRuleStore)(nil)
	var _ RuleStore = (*SQLiteRuleStore)(nil)
}

// storeContract runs the behaviour every RuleStore must share.
func storeContract(t *testing.T, store RuleStore) {
	t.Helper()

	rule := nestedRule()
	require.NoError(t, store.Add(rule))

	got, err := store.Get(rule.ID)
	require.NoError(t, err)
	assert.True(t, EqualRule(rule, got))

	err = store.Add(rule)
	assert.ErrorIs(t, err, ErrRuleExists)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	second := setRule("second", 10, "x", Int(1))
	require.NoError(t, store.Add(second))

	listed, err := store.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, rule.ID, listed[0].ID)
	assert.Equal(t, "second", listed[1].ID)

	updated := rule
	updated.Enabled = false
	updated.Priority = 1
	require.NoError(t, store.Update(updated))

	got, err = store.Get(rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, uint32(1), got.Priority)

	// Updating moves the rule last, matching Engine.Update.
	listed, err = store.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "second", listed[0].ID)
	assert.Equal(t, rule.ID, listed[1].ID)

	assert.ErrorIs(t, store.Update(setRule("missing", 1, "x", Int(1))), ErrRuleNotFound)

	require.NoError(t, store.Delete(rule.ID))
	assert.ErrorIs(t, store.Delete(rule.ID), ErrRuleNotFound)

	listed, err = store.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "second", listed[0].ID)
}

func TestInMemoryRuleStore(t *testing.T) {
	storeContract(t, NewInMemoryRuleStore())
}

// TestInMemoryRuleStoreListsDisabledRules verifies List returns every rule
func TestInMemoryRuleStoreListsDisabledRules(t *testing.T) {
	store := NewInMemoryRuleStore()
	require.NoError(t, store.Add(NewRuleBuilder("off", "off").Enabled(false).Build()))

	listed, err := store.List()
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestInMemoryRuleStoreListEmpty(t *testing.T) {
	listed, err := NewInMemoryRuleStore().List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

// TestInMemoryRuleStoreConcurrentAdd verifies the store is safe for concurrent writers
func TestInMemoryRuleStoreConcurrentAdd(t *testing.T) {
	store := NewInMemoryRuleStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	rulesPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < rulesPerGoroutine; j++ {
				id := fmt.Sprintf("g%d-r%d", goroutineID, j)
				if err := store.Add(setRule(id, 1, id, Int(j))); err != nil {
					t.Errorf("concurrent Add() failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	listed, err := store.List()
	require.NoError(t, err)
	assert.Len(t, listed, numGoroutines*rulesPerGoroutine)
}

// TestInMemoryRuleStoreConcurrentReadWrite verifies readers and deleters can interleave
func TestInMemoryRuleStoreConcurrentReadWrite(t *testing.T) {
	store := NewInMemoryRuleStore()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("r%d", i)
		require.NoError(t, store.Add(setRule(id, 1, id, Int(i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			if _, err := store.List(); err != nil {
				t.Errorf("List() failed: %v", err)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			if err := store.Delete(fmt.Sprintf("r%d", n)); err != nil {
				t.Errorf("Delete() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	listed, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}
