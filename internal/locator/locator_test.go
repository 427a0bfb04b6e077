package locator

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"stock-availability/internal/catalog"
	"stock-availability/internal/deliverability"
	"stock-availability/internal/geo"
	"stock-availability/internal/inventory"
	"stock-availability/internal/sources"
	"stock-availability/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(lat, lng float64) *geo.Point { return &geo.Point{Lat: lat, Lng: lng} }

var riyadh = sources.Source{Code: "R", Name: "Riyadh", Location: pt(24.6408, 46.7728), DeliveryRangeKm: 10}

func TestNearestSourceExamples(t *testing.T) {
	code, ok := NearestSource(geo.Point{Lat: 24.7, Lng: 46.75}, []sources.Source{riyadh})
	assert.True(t, ok)
	assert.Equal(t, "R", code)

	_, ok = NearestSource(geo.Point{Lat: 25, Lng: 47}, []sources.Source{riyadh})
	assert.False(t, ok)
}

func TestNearestSourceEmptyAndNoCoordinates(t *testing.T) {
	_, ok := NearestSource(geo.Point{Lat: 24.7, Lng: 46.75}, nil)
	assert.False(t, ok)
	_, ok = NearestSource(geo.Point{Lat: 24.7, Lng: 46.75}, []sources.Source{{Code: sources.NationwideShipping, DeliveryRangeKm: 1e9}})
	assert.False(t, ok)
}

func TestNearestSourcePicksClosestWithinOwnRange(t *testing.T) {
	p := geo.Point{Lat: 24.7, Lng: 46.75}
	srcs := []sources.Source{
		{Code: "FAR", Location: pt(24.9, 46.9), DeliveryRangeKm: 100},
		// 更近但超出自身半径
		{Code: "SMALL", Location: pt(24.71, 46.75), DeliveryRangeKm: 0.5},
		riyadh,
	}
	code, ok := NearestSource(p, srcs)
	require.True(t, ok)
	assert.Equal(t, "R", code)
}

func TestNearestSourceTieBreakIsLexicographic(t *testing.T) {
	p := geo.Point{Lat: 24.7, Lng: 46.75}
	a := sources.Source{Code: "A", Location: pt(24.71, 46.76), DeliveryRangeKm: 10}
	b := sources.Source{Code: "B", Location: pt(24.71, 46.76), DeliveryRangeKm: 10}
	c1, _ := NearestSource(p, []sources.Source{b, a})
	c2, _ := NearestSource(p, []sources.Source{a, b})
	assert.Equal(t, "A", c1)
	assert.Equal(t, "A", c2)
}

func TestValidPoint(t *testing.T) {
	assert.True(t, ValidPoint(geo.Point{Lat: 24.7, Lng: 46.75}))
	assert.False(t, ValidPoint(geo.Point{Lat: math.NaN(), Lng: 1}))
	assert.False(t, ValidPoint(geo.Point{Lat: 91, Lng: 1}))
	assert.False(t, ValidPoint(geo.Point{Lat: 1, Lng: -181}))
}

type countingDir struct {
	list  []sources.Source
	calls int
	err   error
}

func (d *countingDir) All(ctx context.Context) ([]sources.Source, error) {
	d.calls++
	return d.list, d.err
}

func TestLocatorCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	dir := &countingDir{list: []sources.Source{riyadh}}
	l := New(dir, rdb, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		code, ok := l.Nearest(ctx, geo.Point{Lat: 24.7, Lng: 46.75})
		assert.True(t, ok)
		assert.Equal(t, "R", code)
	}
	assert.Equal(t, 1, dir.calls)
	v, err := mr.Get("nearest:24.7000:46.7500")
	require.NoError(t, err)
	assert.Equal(t, "R", v)

	// 未命中同样缓存
	_, ok := l.Nearest(ctx, geo.Point{Lat: 25, Lng: 47})
	assert.False(t, ok)
	_, ok = l.Nearest(ctx, geo.Point{Lat: 25, Lng: 47})
	assert.False(t, ok)
	assert.Equal(t, 2, dir.calls)

	mr.FastForward(2 * time.Minute)
	_, _ = l.Nearest(ctx, geo.Point{Lat: 24.7, Lng: 46.75})
	assert.Equal(t, 3, dir.calls)
}

func TestLocatorWithoutRedisAndDirectoryError(t *testing.T) {
	dir := &countingDir{err: errors.New("db down")}
	l := New(dir, nil, 0)
	_, ok := l.Nearest(context.Background(), geo.Point{Lat: 24.7, Lng: 46.75})
	assert.False(t, ok)
	_, ok = l.Nearest(context.Background(), geo.Point{Lat: math.NaN(), Lng: 46.75})
	assert.False(t, ok)
	assert.Equal(t, 1, dir.calls)
}

type fakeIP map[string]geo.Point

func (f fakeIP) Locate(ip net.IP) (geo.Point, bool) {
	p, ok := f[ip.String()]
	return p, ok
}

func TestNearestForIP(t *testing.T) {
	l := New(&countingDir{list: []sources.Source{riyadh}}, nil, 0)
	_, ok := l.NearestForIP(context.Background(), "203.0.113.7")
	assert.False(t, ok)

	l.WithIPLocator(fakeIP{"203.0.113.7": {Lat: 24.7, Lng: 46.75}})
	code, ok := l.NearestForIP(context.Background(), "203.0.113.7")
	assert.True(t, ok)
	assert.Equal(t, "R", code)
	_, ok = l.NearestForIP(context.Background(), "not-an-ip")
	assert.False(t, ok)
	_, ok = l.NearestForIP(context.Background(), "198.51.100.1")
	assert.False(t, ok)
}

type statusMap map[string]deliverability.StockStatus

func (s statusMap) StockStatus(ctx context.Context, sku, code string) deliverability.StockStatus {
	if st, ok := s[code]; ok {
		return st
	}
	return deliverability.OutOfStock
}

func TestNearby(t *testing.T) {
	p := geo.Point{Lat: 24.7, Lng: 46.75}
	dir := &countingDir{list: []sources.Source{
		riyadh,
		{Code: "N1", Name: "North", Location: pt(24.75, 46.75), DeliveryRangeKm: 1},
		{Code: "OOS", Location: pt(24.70, 46.76), DeliveryRangeKm: 50},
		{Code: "FAR", Location: pt(26.0, 50.0), DeliveryRangeKm: 500},
	}}
	checker := statusMap{"R": deliverability.InStock, "N1": deliverability.Backorder, "FAR": deliverability.InStock}

	got, err := New(dir, nil, 0).Nearby(context.Background(), p, "S1", 0, checker)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "N1", got[0].SourceCode)
	assert.Equal(t, deliverability.Backorder, got[0].Status)
	assert.InDelta(t, 5.6, got[0].DistanceKm, 0.05)
	assert.Equal(t, "R", got[1].SourceCode)
	assert.Equal(t, math.Round(got[1].DistanceKm*10)/10, got[1].DistanceKm)

	got, err = New(dir, nil, 0).Nearby(context.Background(), p, "S1", 6, checker)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = New(dir, nil, 0).Nearby(context.Background(), geo.Point{Lat: 100}, "S1", 0, checker)
	assert.Error(t, err)
}

func TestNearbyCapsResults(t *testing.T) {
	var list []sources.Source
	checker := statusMap{}
	for i := 0; i < 15; i++ {
		code := string(rune('A' + i))
		list = append(list, sources.Source{Code: code, Location: pt(24.7+float64(i)*0.01, 46.75), DeliveryRangeKm: 50})
		checker[code] = deliverability.InStock
	}
	got, err := New(&countingDir{list: list}, nil, 0).Nearby(context.Background(), geo.Point{Lat: 24.7, Lng: 46.75}, "S1", 50, checker)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "A", got[0].SourceCode)
	assert.Zero(t, got[0].DistanceKm)
}

func TestNearbyAgreesWithOrderValidation(t *testing.T) {
	ctx := context.Background()
	stock := inventory.Stock{}
	stock.Set("S1", "R", true)
	idx := store.NewMemory()
	r := deliverability.New(catalog.NewStatic(catalog.NewProductFact("S1", "simple", false, nil)), idx, inventory.NewStatic(stock))
	dir := &countingDir{list: []sources.Source{riyadh}}
	p := geo.Point{Lat: 24.7, Lng: 46.75}

	// 网点有货但索引未收录：不展示，下单同样被拒
	got, err := New(dir, nil, 0).Nearby(ctx, p, "S1", 0, r)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Error(t, r.ValidateItems(ctx, "R", []deliverability.Item{{SKU: "S1"}}))

	_, err = idx.Upsert(ctx, []store.Row{{SKU: "S1", SourceCode: "R", Deliverable: true}})
	require.NoError(t, err)
	got, err = New(dir, nil, 0).Nearby(ctx, p, "S1", 0, r)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, deliverability.InStock, got[0].Status)
	assert.NoError(t, r.ValidateItems(ctx, "R", []deliverability.Item{{SKU: "S1"}}))
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	_, err := OpenGeoIP(t.TempDir() + "/missing.mmdb")
	assert.Error(t, err)
}
