package idgen_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parsnip-mcp/parsnip/internal/idgen"
)

func TestNewPrefixesID(t *testing.T) {
	id := idgen.New("ent")
	assert.True(t, strings.HasPrefix(id, "ent_"))
}

func TestNewIsSortableByCreationOrder(t *testing.T) {
	first := idgen.New("ent")
	time.Sleep(2 * time.Millisecond)
	second := idgen.New("ent")

	assert.Less(t, first, second)
}

func TestNewProducesUniqueIDsWithinSameMillisecond(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := idgen.New("ent")
		assert.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}
