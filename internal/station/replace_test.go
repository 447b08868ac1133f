package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type nested struct {
	Title   string
	Notes   []string
	Inner   *nested
	ByName  map[string]nested
	private string
}

func TestReplaceText(t *testing.T) {
	root := &nested{
		Title: "old",
		Notes: []string{"old", "keep", "old"},
		Inner: &nested{Title: "old"},
		ByName: map[string]nested{
			"a": {Title: "old"},
			"b": {Title: "other"},
		},
		private: "old",
	}

	n := ReplaceText(root, "old", "new")

	assert.Equal(t, 5, n)
	assert.Equal(t, "new", root.Title)
	assert.Equal(t, []string{"new", "keep", "new"}, root.Notes)
	assert.Equal(t, "new", root.Inner.Title)
	assert.Equal(t, "new", root.ByName["a"].Title)
	assert.Equal(t, "other", root.ByName["b"].Title)
	assert.Equal(t, "old", root.private)
}

func TestReplaceTextRequiresPointer(t *testing.T) {
	v := nested{Title: "old"}

	assert.Zero(t, ReplaceText(v, "old", "new"))
	assert.Zero(t, ReplaceText(&v, "", "new"))
	assert.Zero(t, ReplaceText(&v, "old", "old"))
	assert.Equal(t, "old", v.Title)
}
