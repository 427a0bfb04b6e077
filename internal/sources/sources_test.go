package sources

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"stock-availability/internal/geo"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(lat, lng float64) *geo.Point { return &geo.Point{Lat: lat, Lng: lng} }

func TestNormalize(t *testing.T) {
	in := []Source{
		{Code: "B2", Location: pt(1, 1), HubCodes: []string{"H1", "B2", "H1", "GHOST", "NOCOORD"}},
		{Code: "H1", Location: pt(2, 2), DeliveryRangeKm: 12},
		{Code: "NOCOORD"},
		{Code: "", Location: pt(0, 0)},
		{Code: "B1", Location: pt(3, 3), DeliveryRangeKm: -1},
	}
	out := Normalize(in, 0)
	require.Len(t, out, 3)
	assert.Equal(t, "B1", out[0].Code)
	assert.Equal(t, DefaultRangeKm, out[0].DeliveryRangeKm)
	assert.Equal(t, "B2", out[1].Code)
	assert.Equal(t, []string{"H1"}, out[1].HubCodes)
	assert.Equal(t, DefaultRangeKm, out[1].DeliveryRangeKm)
	assert.Equal(t, 12.0, out[2].DeliveryRangeKm)
}

func TestNormalizeKeepsHubOrderAndCycles(t *testing.T) {
	in := []Source{
		{Code: "A", Location: pt(0, 0), HubCodes: []string{"C", "B"}},
		{Code: "B", Location: pt(0, 0), HubCodes: []string{"A"}},
		{Code: "C", Location: pt(0, 0)},
	}
	out := Normalize(in, 30)
	assert.Equal(t, []string{"C", "B"}, out[0].HubCodes)
	assert.Equal(t, []string{"A"}, out[1].HubCodes)
	assert.Equal(t, 30.0, out[2].DeliveryRangeKm)
}

func TestStaticAllReturnsCopy(t *testing.T) {
	d := NewStatic([]Source{{Code: "A", Location: pt(0, 0)}}, 0)
	list, err := d.All(context.Background())
	require.NoError(t, err)
	list[0].Code = "mutated"
	again, _ := d.All(context.Background())
	assert.Equal(t, "A", again[0].Code)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "sources.json")
	body := `[
	  {"code":"R","name":"Riyadh","phone":"011","lat":24.6408,"lng":46.7728,"delivery_range_km":10,"hub_codes":["HUB"]},
	  {"code":"HUB","lat":24.5,"lng":46.5},
	  {"code":"NATIONWIDE_SHIPPING"}
	]`
	require.NoError(t, os.WriteFile(fp, []byte(body), 0o644))
	d, err := LoadFile(fp, 50)
	require.NoError(t, err)
	list, _ := d.All(context.Background())
	require.Len(t, list, 2)
	assert.Equal(t, "HUB", list[0].Code)
	assert.Equal(t, 50.0, list[0].DeliveryRangeKm)
	assert.Equal(t, "R", list[1].Code)
	assert.Equal(t, []string{"HUB"}, list[1].HubCodes)
	assert.Equal(t, 24.6408, list[1].Location.Lat)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"), 50)
	assert.Error(t, err)
	fp := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(fp, []byte("{"), 0o644))
	_, err = LoadFile(fp, 50)
	assert.Error(t, err)
}

func TestPostgresAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_sources ORDER BY source_code")).
		WillReturnRows(sqlmock.NewRows([]string{"source_code", "name", "phone", "latitude", "longitude", "delivery_range_km", "enabled"}).
			AddRow("B1", "Branch 1", "011", 24.6, 46.7, nil, true).
			AddRow("H1", "Hub", "", 24.5, 46.5, 80.0, true).
			AddRow("X", "", "", nil, nil, nil, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_source_hubs")).
		WillReturnRows(sqlmock.NewRows([]string{"source_code", "hub_code"}).
			AddRow("B1", "H1").
			AddRow("B1", "X").
			AddRow("ZZ", "B1"))

	list, err := NewPostgres(db, 50).All(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B1", list[0].Code)
	assert.Equal(t, []string{"H1"}, list[0].HubCodes)
	assert.Equal(t, 50.0, list[0].DeliveryRangeKm)
	assert.Equal(t, 80.0, list[1].DeliveryRangeKm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAllKeepsDisabledHubs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_sources ORDER BY source_code")).
		WillReturnRows(sqlmock.NewRows([]string{"source_code", "name", "phone", "latitude", "longitude", "delivery_range_km", "enabled"}).
			AddRow("B1", "Branch 1", "", 24.6, 46.7, 30.0, true).
			AddRow("DC", "Warehouse", "", 24.4, 46.9, nil, false).
			AddRow("OLD", "", "", nil, nil, nil, false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_source_hubs")).
		WillReturnRows(sqlmock.NewRows([]string{"source_code", "hub_code"}).
			AddRow("B1", "DC").
			AddRow("B1", "OLD").
			AddRow("DC", "B1"))

	list, err := NewPostgres(db, 50).All(context.Background())
	require.NoError(t, err)
	// 停用的 DC 不对外展示，但仍是 B1 的枢纽；无坐标的 OLD 被丢弃
	require.Len(t, list, 1)
	assert.Equal(t, "B1", list[0].Code)
	assert.Equal(t, []string{"DC"}, list[0].HubCodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
