package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	all := All()
	require.Len(t, all, 8)

	ids := map[string]bool{}
	labs := 0
	for _, s := range all {
		assert.False(t, ids[s.ID], "duplicate id %s", s.ID)
		ids[s.ID] = true
		assert.Len(t, s.Prefix, 2)
		if s.IsLab {
			labs++
			assert.Equal(t, "LB", s.Suffix)
		} else {
			assert.Equal(t, "TH", s.Suffix)
		}
	}
	assert.Equal(t, 4, labs)
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	all[0].Name = "changed"

	s, ok := ByID("dhtml_lab")
	require.True(t, ok)
	assert.Equal(t, "DHTML (Lab)", s.Name)
}

func TestLookup(t *testing.T) {
	s, ok := ByID("ds_lab")
	require.True(t, ok)
	assert.Equal(t, "DS (Lab)", s.Name)
	assert.Equal(t, Lab, s.Kind())
	assert.Equal(t, "Lab", s.KindLabel())
	assert.Equal(t, "DS", s.CardName())

	s, ok = ByName("WordPress")
	require.True(t, ok)
	assert.Equal(t, "wordpress", s.ID)
	assert.Equal(t, Theory, s.Kind())
	assert.Equal(t, "Theory", s.KindLabel())

	_, ok = ByID("physics")
	assert.False(t, ok)
	_, ok = ByName("")
	assert.False(t, ok)
}
