package ride

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/bike"
)

func TestHaversine(t *testing.T) {
	require.Zero(t, haversine(bike.Point(-1.2921, 36.8219), bike.Point(-1.2921, 36.8219)))
	// One degree of longitude on the equator.
	require.InDelta(t, 111195, haversine(bike.Point(0, 0), bike.Point(0, 1)), 1)
	require.InDelta(t, 821, haversine(bike.Point(-1.2921, 36.8219), bike.Point(-1.2864, 36.8172)), 5)
}
