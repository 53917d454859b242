package types

// Sentinels marking an unspecified component of a sky group lookup.
const (
	InvalidCCDModule = -1
	InvalidCCDOutput = -1
	InvalidSeason    = -1
)

// OffFieldOfView is the sky group id of stars that fall on no CCD.
const OffFieldOfView = 0

// SkyGroup maps a CCD module/output in one observing season to the fixed
// region of sky it sees. The SkyGroupID is the partition key of the catalog.
type SkyGroup struct {
	// SkyGroupID identifies the region of sky (1..84 for Kepler).
	SkyGroupID int `json:"sky_group_id"`

	// CCDModule is the focal plane module number.
	CCDModule int `json:"ccd_module"`

	// CCDOutput is the output of the module (1..4).
	CCDOutput int `json:"ccd_output"`

	// ObservingSeason is the roll season (0..3).
	ObservingSeason int `json:"observing_season"`
}

// Specified reports whether none of module, output and season carries the
// "unspecified" sentinel.
func Specified(ccdModule, ccdOutput, observingSeason int) bool {
	return ccdModule != InvalidCCDModule &&
		ccdOutput != InvalidCCDOutput &&
		observingSeason != InvalidSeason
}
