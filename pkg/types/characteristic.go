package types

import "fmt"

// CharacteristicType is a dynamically registered, named scalar attribute
// such as CROWDING or RANKING_1.
type CharacteristicType struct {
	// ID is assigned by storage when the type is registered.
	ID int64 `json:"id"`

	// Name is unique across all registered types.
	Name string `json:"name"`

	// Format is the printf verb used to display values of this type.
	Format string `json:"format"`
}

// ColumnName implements ColumnRef.
func (t CharacteristicType) ColumnName() string { return t.Name }

func (CharacteristicType) columnRef() {}

// Registered reports whether the type carries a storage-assigned id.
func (t CharacteristicType) Registered() bool {
	return t.ID > 0 && t.Name != ""
}

// FormatValue renders v with the type's display format.
func (t CharacteristicType) FormatValue(v float64) string {
	format := t.Format
	if format == "" {
		format = defaultDoubleFormat
	}
	return fmt.Sprintf(format, v)
}

// Characteristic is one value of a CharacteristicType for one star.
//
// Several rows may exist for the same (KeplerID, Type); the row inserted
// last (highest ID) is the current value.
type Characteristic struct {
	ID       int64              `json:"id"`
	KeplerID int                `json:"kepler_id"`
	Type     CharacteristicType `json:"type"`
	Value    float64            `json:"value"`

	// Quarter is the epoch the value applies to; nil when it is not tied
	// to a quarter.
	Quarter *int `json:"quarter,omitempty"`
}
