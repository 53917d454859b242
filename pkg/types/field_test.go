package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldByName(t *testing.T) {
	tests := []struct {
		name string
		want Field
	}{
		{"KEPMAG", FieldKepMag},
		{"kepmag", FieldKepMag},
		{"keplerMag", FieldKepMag},
		{"KEPLER_ID", FieldKeplerID},
		{" dec ", FieldDec},
		{"SKY_GROUP_ID", FieldSkyGroupID},
		{"CQ", FieldCQ},
	}
	for _, tt := range tests {
		got, ok := FieldByName(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, ok := FieldByName("CrowdingMetric")
	assert.False(t, ok)
}

func TestFieldMetadata(t *testing.T) {
	assert.Equal(t, "decl", FieldDec.Column())
	assert.Equal(t, KindDouble, FieldRA.Kind())
	assert.Equal(t, KindString, FieldCQ.Kind())
	assert.Equal(t, KindInt, FieldTeff.Kind())
	assert.False(t, FieldKeplerID.Nullable())
	assert.True(t, FieldKepMag.Nullable())
	assert.Len(t, Fields(), int(numFields))
	assert.False(t, Field(-1).Valid())
	assert.False(t, numFields.Valid())
}

func TestFieldValueAndFormat(t *testing.T) {
	k := &Kic{KeplerID: 42, SkyGroupID: 3, RA: 14.5048607, Dec: 0.07969, KeplerMag: Float32(12.5), Source: String("SCP")}

	assert.Equal(t, 42, FieldKeplerID.Value(k))
	assert.Equal(t, float32(12.5), FieldKepMag.Value(k))
	assert.Nil(t, FieldUMag.Value(k))
	assert.Equal(t, "SCP", FieldCQ.Value(k))

	assert.Equal(t, "14.5048607", FieldRA.Format(FieldRA.Value(k)))
	assert.Equal(t, "12.500", FieldKepMag.Format(FieldKepMag.Value(k)))
	assert.Equal(t, "", FieldUMag.Format(FieldUMag.Value(k)))
}

func TestFieldScanTarget(t *testing.T) {
	k := &Kic{}
	*(FieldKeplerID.ScanTarget(k).(*int)) = 7
	*(FieldKepMag.ScanTarget(k).(**float32)) = Float32(9.5)

	assert.Equal(t, 7, k.KeplerID)
	require.NotNil(t, k.KeplerMag)
	assert.Equal(t, float32(9.5), *k.KeplerMag)
}
