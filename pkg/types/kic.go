// Package types provides the core data types of the Kepler Input Catalog.
package types

// Kic is a single Kepler Input Catalog entry.
//
// A Kic is a value object identified by its KeplerID. Two entries with the
// same KeplerID are the same star no matter what their other fields say, so
// Equal and HashKey only look at the id.
type Kic struct {
	// KeplerID is the unique, never reused catalog identifier.
	KeplerID int `json:"kepler_id" db:"kepler_id"`

	// SkyGroupID is the sky group the star falls on; 0 means the star is
	// not on the field of view.
	SkyGroupID int `json:"sky_group_id" db:"sky_group_id"`

	// RA is the right ascension in hours.
	RA float64 `json:"ra" db:"ra"`

	// Dec is the declination in degrees.
	Dec float64 `json:"dec" db:"decl"`

	RAProperMotion  *float32 `json:"pmra,omitempty" db:"pmra"`
	DecProperMotion *float32 `json:"pmdec,omitempty" db:"pmdec"`

	UMag        *float32 `json:"umag,omitempty" db:"umag"`
	GMag        *float32 `json:"gmag,omitempty" db:"gmag"`
	RMag        *float32 `json:"rmag,omitempty" db:"rmag"`
	IMag        *float32 `json:"imag,omitempty" db:"imag"`
	ZMag        *float32 `json:"zmag,omitempty" db:"zmag"`
	GRedMag     *float32 `json:"gredmag,omitempty" db:"gredmag"`
	D51Mag      *float32 `json:"d51mag,omitempty" db:"d51mag"`
	TwoMassJMag *float32 `json:"jmag,omitempty" db:"jmag"`
	TwoMassHMag *float32 `json:"hmag,omitempty" db:"hmag"`
	TwoMassKMag *float32 `json:"kmag,omitempty" db:"kmag"`
	KeplerMag   *float32 `json:"kepmag,omitempty" db:"kepmag"`

	TwoMassID         *int32 `json:"tmid,omitempty" db:"tmid"`
	InternalScpID     *int32 `json:"scpid,omitempty" db:"scpid"`
	AlternateID       *int32 `json:"altid,omitempty" db:"altid"`
	AlternateSource   *int32 `json:"altsource,omitempty" db:"altsource"`
	GalaxyIndicator   *int32 `json:"galaxy,omitempty" db:"galaxy"`
	BlendIndicator    *int32 `json:"blend,omitempty" db:"blend"`
	VariableIndicator *int32 `json:"variable,omitempty" db:"variable"`
	EffectiveTemp     *int32 `json:"teff,omitempty" db:"teff"`

	Log10SurfaceGravity *float32 `json:"logg,omitempty" db:"logg"`
	Log10Metallicity    *float32 `json:"feh,omitempty" db:"feh"`
	EbMinusVRedding     *float32 `json:"ebminusv,omitempty" db:"ebminusv"`
	AvExtinction        *float32 `json:"av,omitempty" db:"av"`
	Radius              *float32 `json:"radius,omitempty" db:"radius"`

	// Source is the provenance of the entry (the "CQ" column).
	Source *string `json:"cq,omitempty" db:"cq"`

	PhotometryQuality   *int32 `json:"pq,omitempty" db:"pq"`
	AstrophysicsQuality *int32 `json:"aq,omitempty" db:"aq"`
	CatalogID           *int32 `json:"catkey,omitempty" db:"catkey"`
	ScpID               *int32 `json:"scpkey,omitempty" db:"scpkey"`

	Parallax          *float32 `json:"parallax,omitempty" db:"parallax"`
	GalacticLongitude *float64 `json:"glon,omitempty" db:"glon"`
	GalacticLatitude  *float64 `json:"glat,omitempty" db:"glat"`
	TotalProperMotion *float32 `json:"pmtotal,omitempty" db:"pmtotal"`
	GRColor           *float32 `json:"grcolor,omitempty" db:"grcolor"`
	JKColor           *float32 `json:"jkcolor,omitempty" db:"jkcolor"`
	GKColor           *float32 `json:"gkcolor,omitempty" db:"gkcolor"`
}

// Equal reports whether k and other describe the same star.
func (k *Kic) Equal(other *Kic) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.KeplerID == other.KeplerID
}

// HashKey returns the key to use when Kic entries are stored in a map or set.
func (k *Kic) HashKey() int {
	return k.KeplerID
}

// Visible reports whether the star falls on the field of view.
func (k *Kic) Visible() bool {
	return k.SkyGroupID != OffFieldOfView
}

// Float32 returns a pointer to v, for populating nullable fields.
func Float32(v float32) *float32 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
