package types

import (
	"fmt"
	"reflect"
	"strings"
)

// Field identifies one of the fixed columns of a Kic entry.
type Field int

const (
	FieldKeplerID Field = iota
	FieldSkyGroupID
	FieldRA
	FieldDec
	FieldPMRA
	FieldPMDec
	FieldUMag
	FieldGMag
	FieldRMag
	FieldIMag
	FieldZMag
	FieldGRedMag
	FieldD51Mag
	FieldJMag
	FieldHMag
	FieldKMag
	FieldKepMag
	FieldTMID
	FieldSCPID
	FieldAltID
	FieldAltSource
	FieldGalaxy
	FieldBlend
	FieldVariable
	FieldTeff
	FieldLogG
	FieldFeH
	FieldEBMinusV
	FieldAV
	FieldRadius
	FieldCQ
	FieldPQ
	FieldAQ
	FieldCatKey
	FieldSCPKey
	FieldParallax
	FieldGLon
	FieldGLat
	FieldPMTotal
	FieldGRColor
	FieldJKColor
	FieldGKColor

	numFields
)

// ValueKind is the storage type of a fixed field.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindDouble
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

const (
	defaultIntFormat    = "%d"
	defaultFloatFormat  = "%.3f"
	defaultDoubleFormat = "%.6f"
	defaultStringFormat = "%s"
)

type fieldMeta struct {
	name     string // canonical name, e.g. KEPMAG
	property string // Go-style alias accepted by FieldByName, e.g. keplerMag
	column   string
	kind     ValueKind
	format   string
	nullable bool
	index    int // struct field index in Kic
}

var fields = [numFields]fieldMeta{
	FieldKeplerID:   {name: "KEPLER_ID", property: "keplerId", column: "kepler_id", kind: KindInt, format: defaultIntFormat},
	FieldSkyGroupID: {name: "SKY_GROUP_ID", property: "skyGroupId", column: "sky_group_id", kind: KindInt, format: defaultIntFormat},
	FieldRA:         {name: "RA", property: "ra", column: "ra", kind: KindDouble, format: "%.7f"},
	FieldDec:        {name: "DEC", property: "dec", column: "decl", kind: KindDouble, format: defaultDoubleFormat},
	FieldPMRA:       {name: "PMRA", property: "raProperMotion", column: "pmra", kind: KindFloat, format: "%.4f", nullable: true},
	FieldPMDec:      {name: "PMDEC", property: "decProperMotion", column: "pmdec", kind: KindFloat, format: "%.4f", nullable: true},
	FieldUMag:       {name: "UMAG", property: "uMag", column: "umag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldGMag:       {name: "GMAG", property: "gMag", column: "gmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldRMag:       {name: "RMAG", property: "rMag", column: "rmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldIMag:       {name: "IMAG", property: "iMag", column: "imag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldZMag:       {name: "ZMAG", property: "zMag", column: "zmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldGRedMag:    {name: "GREDMAG", property: "gredMag", column: "gredmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldD51Mag:     {name: "D51MAG", property: "d51Mag", column: "d51mag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldJMag:       {name: "JMAG", property: "twoMassJMag", column: "jmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldHMag:       {name: "HMAG", property: "twoMassHMag", column: "hmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldKMag:       {name: "KMAG", property: "twoMassKMag", column: "kmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldKepMag:     {name: "KEPMAG", property: "keplerMag", column: "kepmag", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldTMID:       {name: "TMID", property: "twoMassId", column: "tmid", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldSCPID:      {name: "SCPID", property: "internalScpId", column: "scpid", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldAltID:      {name: "ALTID", property: "alternateId", column: "altid", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldAltSource:  {name: "ALTSOURCE", property: "alternateSource", column: "altsource", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldGalaxy:     {name: "GALAXY", property: "galaxyIndicator", column: "galaxy", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldBlend:      {name: "BLEND", property: "blendIndicator", column: "blend", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldVariable:   {name: "VARIABLE", property: "variableIndicator", column: "variable", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldTeff:       {name: "TEFF", property: "effectiveTemp", column: "teff", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldLogG:       {name: "LOGG", property: "log10SurfaceGravity", column: "logg", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldFeH:        {name: "FEH", property: "log10Metallicity", column: "feh", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldEBMinusV:   {name: "EBMINUSV", property: "ebMinusVRedding", column: "ebminusv", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldAV:         {name: "AV", property: "avExtinction", column: "av", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldRadius:     {name: "RADIUS", property: "radius", column: "radius", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldCQ:         {name: "CQ", property: "source", column: "cq", kind: KindString, format: defaultStringFormat, nullable: true},
	FieldPQ:         {name: "PQ", property: "photometryQuality", column: "pq", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldAQ:         {name: "AQ", property: "astrophysicsQuality", column: "aq", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldCatKey:     {name: "CATKEY", property: "catalogId", column: "catkey", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldSCPKey:     {name: "SCPKEY", property: "scpId", column: "scpkey", kind: KindInt, format: defaultIntFormat, nullable: true},
	FieldParallax:   {name: "PARALLAX", property: "parallax", column: "parallax", kind: KindFloat, format: "%.4f", nullable: true},
	FieldGLon:       {name: "GLON", property: "galacticLongitude", column: "glon", kind: KindDouble, format: defaultDoubleFormat, nullable: true},
	FieldGLat:       {name: "GLAT", property: "galacticLatitude", column: "glat", kind: KindDouble, format: defaultDoubleFormat, nullable: true},
	FieldPMTotal:    {name: "PMTOTAL", property: "totalProperMotion", column: "pmtotal", kind: KindFloat, format: "%.4f", nullable: true},
	FieldGRColor:    {name: "GRCOLOR", property: "grColor", column: "grcolor", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldJKColor:    {name: "JKCOLOR", property: "jkColor", column: "jkcolor", kind: KindFloat, format: defaultFloatFormat, nullable: true},
	FieldGKColor:    {name: "GKCOLOR", property: "gkColor", column: "gkcolor", kind: KindFloat, format: defaultFloatFormat, nullable: true},
}

var fieldsByName = make(map[string]Field, 2*int(numFields))

func init() {
	kicType := reflect.TypeOf(Kic{})
	byColumn := make(map[string]int, kicType.NumField())
	for i := 0; i < kicType.NumField(); i++ {
		byColumn[kicType.Field(i).Tag.Get("db")] = i
	}

	for f := Field(0); f < numFields; f++ {
		m := &fields[f]
		idx, ok := byColumn[m.column]
		if !ok {
			panic(fmt.Sprintf("types: no Kic struct field for column %q", m.column))
		}
		m.index = idx
		fieldsByName[strings.ToLower(m.name)] = f
		fieldsByName[strings.ToLower(m.property)] = f
	}
}

// Fields returns every fixed field in column order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldByName resolves a canonical field name (KEPMAG) or its property
// alias (keplerMag), ignoring case.
func FieldByName(name string) (Field, bool) {
	f, ok := fieldsByName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Valid reports whether f names a known field.
func (f Field) Valid() bool {
	return f >= 0 && f < numFields
}

// String returns the canonical field name.
func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fields[f].name
}

// ColumnName implements ColumnRef.
func (f Field) ColumnName() string { return f.String() }

func (Field) columnRef() {}

// Column returns the storage column name.
func (f Field) Column() string { return fields[f].column }

// Kind returns the storage type of the field.
func (f Field) Kind() ValueKind { return fields[f].kind }

// Nullable reports whether the field may hold no value.
func (f Field) Nullable() bool { return fields[f].nullable }

// FormatString returns the printf verb used to display the field.
func (f Field) FormatString() string { return fields[f].format }

// Format renders v with the field's display format. A nil value renders as
// the empty string.
func (f Field) Format(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(fields[f].format, v)
}

// Value returns the field's value in k, or nil when the field is null.
func (f Field) Value(k *Kic) any {
	v := reflect.ValueOf(k).Elem().Field(fields[f].index)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

// ScanTarget returns a pointer to the field inside k, suitable as a
// destination for database/sql scanning.
func (f Field) ScanTarget(k *Kic) any {
	return reflect.ValueOf(k).Elem().Field(fields[f].index).Addr().Interface()
}
