// Package chspeed assigns free-flow travel speeds to OSM highway classes,
// used to convert an edge's physical length into the duration half of its
// (weight, duration) pair.
package chspeed

// kmhByHighway gives a free-flow speed in km/h for each OSM highway tag
// value accepted by the parser. Values follow the ranges commonly used by
// OSRM-style car profiles; unlisted tags fall back to defaultKMH.
var kmhByHighway = map[string]float64{
	"motorway":       100,
	"motorway_link":  60,
	"trunk":          85,
	"trunk_link":     50,
	"primary":        65,
	"primary_link":   45,
	"secondary":      55,
	"secondary_link": 40,
	"tertiary":       45,
	"tertiary_link":  35,
	"unclassified":   35,
	"residential":    30,
	"living_street":  15,
	"service":        15,
}

const defaultKMH = 35 // same as "unclassified"

// decisecondsPerMeter is how many deciseconds (tenths of a second) it takes
// to travel one meter at the given highway class's free-flow speed.
func decisecondsPerMeter(highway string) float64 {
	kmh, ok := kmhByHighway[highway]
	if !ok {
		kmh = defaultKMH
	}
	metersPerSecond := kmh * 1000 / 3600
	return 10 / metersPerSecond
}

// Duration converts a distance in millimeters into a travel duration in
// deciseconds for the given highway class.
func Duration(distanceMM uint32, highway string) int32 {
	meters := float64(distanceMM) / 1000
	ds := meters * decisecondsPerMeter(highway)
	if ds < 1 {
		return 1 // avoid zero-duration edges, mirroring the zero-weight guard
	}
	return int32(ds + 0.5)
}
