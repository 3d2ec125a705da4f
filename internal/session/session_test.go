package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_CanonicalUUID(t *testing.T) {
	id := New()
	require.False(t, id.Empty())
	require.Len(t, id.String(), 36)
	require.True(t, Valid(id.String()))
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[ID]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"", false},
		{"sid-123", false},
		{"6ba7b8109dad11d180b400c04fd430c8", false},
		{"{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Valid(tc.in), "in=%q", tc.in)
	}
}

func TestIdentity_EmptyBeforeGenerate(t *testing.T) {
	var i Identity
	require.True(t, i.ID().Empty())
	require.False(t, i.Ready())
}

func TestIdentity_GenerateIsStable(t *testing.T) {
	calls := 0
	orig := newUUID
	newUUID = func() string {
		calls++
		return orig()
	}
	t.Cleanup(func() { newUUID = orig })

	var i Identity
	first := i.Generate()
	second := i.Generate()
	require.Equal(t, first, second)
	require.Equal(t, first, i.ID())
	require.True(t, i.Ready())
	require.Equal(t, 1, calls)
}

func TestIdentity_ConcurrentGenerate(t *testing.T) {
	var i Identity
	var wg sync.WaitGroup
	results := make([]ID, 16)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = i.Generate()
		}(n)
	}
	wg.Wait()
	for _, id := range results {
		require.Equal(t, results[0], id)
	}
}
