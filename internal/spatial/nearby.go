// Package spatial finds catalog entries close to a sky position.
package spatial

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kepler-soc/kic/internal/cache"
	catalogerrors "github.com/kepler-soc/kic/internal/errors"
)

const (
	// HoursPerDegree converts degrees of right ascension to hours.
	HoursPerDegree = 1.0 / 15.0

	// DegreesPerArcsec converts arcseconds to degrees.
	DegreesPerArcsec = 1.0 / 3600.0

	// ArcsecsPerPixel is the plate scale of a Kepler CCD pixel.
	ArcsecsPerPixel = 3.98
)

// ListingSource hands out the entries of one sky group.
type ListingSource interface {
	Listing(ctx context.Context, skyGroupID int) (*cache.Listing, error)
}

// Position is a point on the sky. RA is in hours, Dec in degrees.
type Position struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Valid reports whether neither coordinate is NaN.
func (p Position) Valid() bool {
	return !math.IsNaN(p.RA) && !math.IsNaN(p.Dec)
}

// Box is an axis-aligned window in RA/Dec. All four edges are inclusive.
type Box struct {
	MinRA, MaxRA   float64
	MinDec, MaxDec float64
}

// NewBoundingBox returns the square window of widthArcsec centered on
// center. The RA half-width grows with 1/cos(dec) so that the window covers
// the same angular distance on the sky away from the equator.
//
// A negative width yields an inverted box that contains nothing.
func NewBoundingBox(center Position, widthArcsec float64) Box {
	raHalf := widthArcsec / 2 * HoursPerDegree * DegreesPerArcsec
	raHalf /= math.Cos(center.Dec * math.Pi / 180)
	decHalf := widthArcsec / 2 * DegreesPerArcsec

	return Box{
		MinRA:  center.RA - raHalf,
		MaxRA:  center.RA + raHalf,
		MinDec: center.Dec - decHalf,
		MaxDec: center.Dec + decHalf,
	}
}

// Contains reports whether p lies in the box, edges included.
func (b Box) Contains(p Position) bool {
	return p.RA >= b.MinRA && p.RA <= b.MaxRA &&
		p.Dec >= b.MinDec && p.Dec <= b.MaxDec
}

// FindNearby returns the ascending Kepler ids in skyGroupID that fall within
// the box of widthArcsec around center, leaving out excludeID. A NaN
// coordinate gives an empty result without consulting source.
func FindNearby(ctx context.Context, center Position, excludeID, skyGroupID int, widthArcsec float64, source ListingSource) ([]int, error) {
	if !center.Valid() {
		return []int{}, nil
	}
	if source == nil {
		return nil, catalogerrors.InvalidArgumentf("spatial: nil listing source")
	}

	box := NewBoundingBox(center, widthArcsec)
	listing, err := source.Listing(ctx, skyGroupID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ids := make([]int, 0)
	for i := 0; i < listing.Len(); i++ {
		k := listing.At(i)
		if k.KeplerID == excludeID {
			continue
		}
		if box.Contains(Position{RA: k.RA, Dec: k.Dec}) {
			ids = append(ids, k.KeplerID)
		}
	}
	sort.Ints(ids)

	log.Debug().
		Int("sky_group_id", skyGroupID).
		Int("kepler_id", excludeID).
		Float64("width_arcsec", widthArcsec).
		Int("scanned", listing.Len()).
		Int("found", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("spatial: nearby search complete")
	return ids, nil
}
