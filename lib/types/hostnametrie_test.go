package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostnameTrieInsert(t *testing.T) {
	t.Parallel()

	hostnames, err := NewHostnameTrie([]string{"shell.example"})
	require.NoError(t, err)
	assert.NoError(t, hostnames.insert("worlds.example"))
	assert.Error(t, hostnames.insert("inval*d.pattern"))
	assert.NoError(t, hostnames.insert("*.cdn.example"))

	_, err = NewHostnameTrie([]string{"https://shell.example"})
	assert.Error(t, err)
}

func TestHostnameTrieContains(t *testing.T) {
	t.Parallel()

	trie, err := NewHostnameTrie([]string{"shell.example", "a.shell.example", "*.cdn.example", "*worlds.example"})
	require.NoError(t, err)
	assert.Equal(t, []string{"shell.example", "a.shell.example", "*.cdn.example", "*worlds.example"}, trie.Source())

	cases := map[string]string{
		"Shell.Example":         "shell.example",
		"a.shell.example":       "a.shell.example",
		"b.shell.example":       "",
		"example":               "",
		"eu.cdn.example":        "*.cdn.example",
		"cdn.example":           "",
		"worlds.example":        "*worlds.example",
		"metaworlds.example":    "*worlds.example",
		"x.y.worlds.example":    "*worlds.example",
		"shell.example.evil.io": "",
	}
	for host, pattern := range cases {
		host, pattern := host, pattern
		t.Run(host, func(t *testing.T) {
			t.Parallel()
			match, matches := trie.Contains(host)
			if pattern == "" {
				assert.False(t, matches)
				assert.Empty(t, match)
				return
			}
			assert.True(t, matches)
			assert.Equal(t, pattern, match)
		})
	}
}
