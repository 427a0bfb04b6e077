package inventory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockMissingIsOutOfStock(t *testing.T) {
	s := Stock{}
	assert.False(t, s.InStock("nope", "B1"))
	s.Set("S1", "B1", true)
	s.Set("S1", "B2", false)
	assert.True(t, s.InStock("S1", "B1"))
	assert.False(t, s.InStock("S1", "B2"))
	assert.False(t, s.InStock("S1", "B3"))
}

func TestStaticLoadBulkFilters(t *testing.T) {
	all := Stock{}
	all.Set("S1", "B1", true)
	all.Set("S2", "B1", true)
	got, err := NewStatic(all).LoadBulk(context.Background(), []string{"S1", "S9"})
	require.NoError(t, err)
	assert.True(t, got.InStock("S1", "B1"))
	assert.False(t, got.InStock("S2", "B1"))
}

func TestPostgresLoadBulk(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_source_items WHERE sku = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"sku", "source_code", "in_stock"}).
			AddRow("S1", "B1", true).
			AddRow("S1", "H1", false))
	got, err := NewPostgres(db).LoadBulk(context.Background(), []string{"S1"})
	require.NoError(t, err)
	assert.True(t, got.InStock("S1", "B1"))
	assert.False(t, got.InStock("S1", "H1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadBulkError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_source_items")).WillReturnError(errors.New("conn reset"))
	_, err = NewPostgres(db).LoadBulk(context.Background(), []string{"S1"})
	assert.EqualError(t, err, "conn reset")
}
