package permits_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/httpx"
	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/permits"
)

// samplePermitsCSV mirrors the public registers search endpoint's actual
// column shape: registrationNumber/@id, holder.name,
// registrationType.label/exemption.registrationType.notation,
// site.siteAddress.address, site.siteAddress.postcode, and a
// server-computed distance column.
const samplePermitsCSV = "registrationNumber,@id,holder.name,registrationType.label,exemption.registrationType.notation,site.siteAddress.address,site.siteAddress.postcode,distance\n" +
	"P1,,Acme Ltd,Discharge,,1 River Rd,,0.42\n" +
	"P2,,Beta Co,,Waste,2 Canal St,SW1A 1AA,\n" +
	"P3,,Gamma LLP,Unrecognized Type,,3 Lock Ln,,1.10\n"

func TestSearchNear_ParsesCSVAndAnnotatesDistance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "533500", r.URL.Query().Get("easting"))
		assert.Equal(t, "180700", r.URL.Query().Get("northing"))
		w.Write([]byte(samplePermitsCSV))
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 1, time.Millisecond)
	s := permits.NewSearcher(client, srv.URL, nil)

	out, err := s.SearchNear(t.Context(), 51.5, -0.1, 533500, 180700, 50)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "P1", out[0].PermitID)
	assert.Equal(t, model.PermitDischarge, out[0].Category)
	assert.InDelta(t, 0.42, out[0].DistanceKM, 1e-9)

	assert.Equal(t, model.PermitWaste, out[1].Category)
	assert.False(t, out[1].HasGeocode) // no geocode client configured, and no distance returned

	assert.Equal(t, model.PermitOther, out[2].Category)
	assert.InDelta(t, 1.10, out[2].DistanceKM, 1e-9)
}

func TestSearchNear_EmptyCSVReturnsEmptySlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("registrationNumber,holder.name,registrationType.label,site.siteAddress.address,distance\n"))
	}))
	defer srv.Close()

	client := httpx.New(2*time.Second, 1, time.Millisecond)
	s := permits.NewSearcher(client, srv.URL, nil)

	out, err := s.SearchNear(t.Context(), 51.5, -0.1, 533500, 180700, 50)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSearchNear_FallsBackToGeocodeWhenDistanceColumnEmpty(t *testing.T) {
	permitsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("registrationNumber,holder.name,registrationType.label,site.siteAddress.address,site.siteAddress.postcode,distance\n" +
			"P2,Beta Co,Waste Exemption,2 Canal St,SW1A 1AA,\n"))
	}))
	defer permitsSrv.Close()

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"latitude":51.501,"longitude":-0.141}}`))
	}))
	defer geoSrv.Close()

	client := httpx.New(2*time.Second, 1, time.Millisecond)
	geocode := permits.NewGeocodeClient(client, geoSrv.URL)
	s := permits.NewSearcher(client, permitsSrv.URL, geocode)

	out, err := s.SearchNear(t.Context(), 51.5, -0.1, 533500, 180700, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].HasGeocode)
	assert.InDelta(t, 51.501, out[0].Lat, 1e-6)
	assert.Greater(t, out[0].DistanceKM, 0.0)
}

func TestNewGeocodeClient_EmptyBaseURLDisablesGeocoding(t *testing.T) {
	client := httpx.New(2*time.Second, 1, time.Millisecond)
	assert.Nil(t, permits.NewGeocodeClient(client, ""))
}
