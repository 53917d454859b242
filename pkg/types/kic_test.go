package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestKicEqualityIsByID(t *testing.T) {
	a := &Kic{KeplerID: 8462852, SkyGroupID: 42, RA: 20.1, Dec: 44.4, KeplerMag: Float32(11.9)}
	b := &Kic{KeplerID: 8462852, SkyGroupID: 7, RA: 1.0, Dec: -3.0, Source: String("SCP")}
	c := &Kic{KeplerID: 8462853, SkyGroupID: 42, RA: 20.1, Dec: 44.4, KeplerMag: Float32(11.9)}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.HashKey(), b.HashKey())
	assert.False(t, a.Equal(c))

	set := map[int]*Kic{}
	set[a.HashKey()] = a
	set[b.HashKey()] = b
	assert.Len(t, set, 1)

	var nilKic *Kic
	assert.False(t, a.Equal(nilKic))
	assert.True(t, nilKic.Equal(nil))
}

func TestProperty_KicIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("entries with the same id are equal regardless of other fields", prop.ForAll(
		func(id, sg1, sg2 int, ra1, ra2 float64) bool {
			a := &Kic{KeplerID: id, SkyGroupID: sg1, RA: ra1}
			b := &Kic{KeplerID: id, SkyGroupID: sg2, RA: ra2, KeplerMag: Float32(12)}
			return a.Equal(b) && b.Equal(a) && a.HashKey() == b.HashKey()
		},
		gen.IntRange(1, 100000000),
		gen.IntRange(0, 84),
		gen.IntRange(0, 84),
		gen.Float64Range(0, 24),
		gen.Float64Range(0, 24),
	))

	properties.TestingRun(t)
}

func TestKicVisible(t *testing.T) {
	assert.False(t, (&Kic{KeplerID: 1, SkyGroupID: OffFieldOfView}).Visible())
	assert.True(t, (&Kic{KeplerID: 1, SkyGroupID: 3}).Visible())
}
