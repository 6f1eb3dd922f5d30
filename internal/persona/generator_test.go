package persona

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	fixed := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(42)
	a.now = func() time.Time { return fixed }
	b := NewGenerator(42)
	b.now = func() time.Time { return fixed }

	pa := a.Generate(2)
	pb := b.Generate(2)

	assert.Equal(t, pa.ID, pb.ID)
	assert.Equal(t, pa.Parent, pb.Parent)
	assert.Equal(t, pa.Children, pb.Children)
	assert.Equal(t, pa.Prefs, pb.Prefs)
	assert.Equal(t, pa.Verbosity, pb.Verbosity)

	c := NewGenerator(43)
	c.now = func() time.Time { return fixed }
	assert.NotEqual(t, pa.ID, c.Generate(2).ID)
}

func TestGeneratePopulatesInventory(t *testing.T) {
	g := NewGenerator(7)
	p := g.Generate(1)

	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.Parent.Name)
	assert.NotEmpty(t, p.Parent.Phone)
	assert.NotEmpty(t, p.Parent.Email)
	require.Len(t, p.Children, 1)
	assert.False(t, p.Children[0].DOB.IsZero())
	assert.NotEmpty(t, p.Insurance.Provider)
	assert.NotEmpty(t, p.CallReason)
	assert.True(t, p.OrthodonticCase)
}

func TestGenerateClampsChildCount(t *testing.T) {
	g := NewGenerator(7)
	assert.Len(t, g.Generate(0).Children, 1)
	assert.Len(t, g.Generate(3).Children, 3)
}

func TestGenerateChildAgesInOrthodonticRange(t *testing.T) {
	g := NewGenerator(11)
	now := time.Now()
	for i := 0; i < 20; i++ {
		for _, c := range g.Generate(1).Children {
			age := c.Age(now)
			assert.GreaterOrEqual(t, age, 6)
			assert.LessOrEqual(t, age, 16)
		}
	}
}

func TestGenerateOffTopicPersona(t *testing.T) {
	g := NewGenerator(3)
	p := g.GenerateOffTopic()

	assert.False(t, p.OrthodonticCase)
	assert.Contains(t, p.CallReason, "cleaning")
	assert.NotEmpty(t, p.Verbosity)
}
