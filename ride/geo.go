package ride

import (
	"math"

	"github.com/jackc/pgx/v5/pgtype"
)

const earthRadiusMetres = 6371000.0

// Points store latitude in X and longitude in Y.
func haversine(a, b pgtype.Point) float64 {
	lat1, lng1 := a.P.X*math.Pi/180, a.P.Y*math.Pi/180
	lat2, lng2 := b.P.X*math.Pi/180, b.P.Y*math.Pi/180

	dLat := lat2 - lat1
	dLng := lng2 - lng1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMetres * math.Asin(math.Sqrt(h))
}
