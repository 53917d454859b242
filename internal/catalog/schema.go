package catalog

import (
	"fmt"
	"strings"

	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/pkg/types"
)

// CharacteristicTypeTable holds the registered characteristic types.
const CharacteristicTypeTable = "characteristic_type"

// columnType returns the column type of a fixed field for driver.
func columnType(driver string, kind types.ValueKind) string {
	switch kind {
	case types.KindInt:
		return "INTEGER"
	case types.KindFloat:
		return "REAL"
	case types.KindString:
		return "TEXT"
	default:
		if driver == DriverPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	}
}

func serialPrimaryKey(driver string) string {
	if driver == DriverPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// CreateSkyGroupTableSQL creates the sky group lookup table. Each CCD
// module/output sees exactly one sky group per observing season.
const CreateSkyGroupTableSQL = `
CREATE TABLE IF NOT EXISTS sky_group (
    sky_group_id INTEGER PRIMARY KEY,
    ccd_module INTEGER NOT NULL,
    ccd_output INTEGER NOT NULL,
    observing_season INTEGER NOT NULL,
    UNIQUE (ccd_module, ccd_output, observing_season)
)`

// CreateKicTableSQL returns the kic table definition. One column per fixed
// field, in field order.
func CreateKicTableSQL(driver string) string {
	var sb strings.Builder
	sb.WriteString("\nCREATE TABLE IF NOT EXISTS " + planner.KicTable + " (\n")
	for _, f := range types.Fields() {
		sb.WriteString("    " + f.Column() + " " + columnType(driver, f.Kind()))
		switch {
		case f == types.FieldKeplerID:
			sb.WriteString(" PRIMARY KEY")
		case f == types.FieldCatKey:
			sb.WriteString(" UNIQUE")
		case !f.Nullable():
			sb.WriteString(" NOT NULL")
		}
		sb.WriteString(",\n")
	}
	return strings.TrimSuffix(sb.String(), ",\n") + "\n)"
}

// CreateCharacteristicTypeTableSQL returns the characteristic type table.
func CreateCharacteristicTypeTableSQL(driver string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS characteristic_type (
    id %s,
    name TEXT NOT NULL UNIQUE,
    format TEXT NOT NULL
)`, serialPrimaryKey(driver))
}

// CreateCharacteristicTableSQL returns the characteristic table. Rows are
// append-only history; the highest id per (kepler_id, type_id) is current.
func CreateCharacteristicTableSQL(driver string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS characteristic (
    id %s,
    kepler_id INTEGER NOT NULL,
    type_id BIGINT NOT NULL REFERENCES characteristic_type(id),
    value %s NOT NULL,
    quarter INTEGER
)`, serialPrimaryKey(driver), columnType(driver, types.KindDouble))
}

// CreateIndexesSQL covers the access paths of the query compiler and the
// id lookups.
var CreateIndexesSQL = []string{
	// Partition key of the catalog
	`CREATE INDEX IF NOT EXISTS idx_kic_sky_group ON kic(sky_group_id, kepler_id)`,

	// Magnitude range selection
	`CREATE INDEX IF NOT EXISTS idx_kic_kepmag ON kic(kepmag)`,

	// Characteristic joins go through (kepler_id, type_id)
	`CREATE INDEX IF NOT EXISTS idx_characteristic_kic_type ON characteristic(kepler_id, type_id)`,

	`CREATE INDEX IF NOT EXISTS idx_characteristic_type_quarter ON characteristic(type_id, quarter)`,
}

// AllSchemaSQL returns every statement needed to create the schema for
// driver, in dependency order.
func AllSchemaSQL(driver string) []string {
	stmts := []string{
		CreateSkyGroupTableSQL,
		CreateKicTableSQL(driver),
		CreateCharacteristicTypeTableSQL(driver),
		CreateCharacteristicTableSQL(driver),
	}
	return append(stmts, CreateIndexesSQL...)
}
