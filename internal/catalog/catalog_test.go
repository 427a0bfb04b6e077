package catalog

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromTypeCode(t *testing.T) {
	assert.Equal(t, Composite, KindFromTypeCode("configurable"))
	assert.Equal(t, Composite, KindFromTypeCode(" Grouped "))
	assert.Equal(t, Simple, KindFromTypeCode("simple"))
	assert.Equal(t, Simple, KindFromTypeCode("bundle"))
	assert.Equal(t, Simple, KindFromTypeCode(""))
	assert.Equal(t, "composite", Composite.String())
}

func TestNewProductFactDropsChildrenForSimple(t *testing.T) {
	f := NewProductFact("S1", "simple", false, []string{"x"})
	assert.Equal(t, Simple, f.Kind)
	assert.Nil(t, f.Children)
	c := NewProductFact("C1", "configurable", false, []string{"C1-RED"})
	assert.Equal(t, []string{"C1-RED"}, c.Children)
}

func TestFactsChildSKUs(t *testing.T) {
	f := Facts{
		"C1": NewProductFact("C1", "configurable", false, []string{"R", "B"}),
		"C2": NewProductFact("C2", "grouped", false, []string{"B", "G"}),
		"S1": NewProductFact("S1", "simple", false, nil),
	}
	assert.Equal(t, []string{"R", "B", "G"}, f.ChildSKUs([]string{"S1", "C1", "C2", "missing"}))
}

func TestStaticSkuPage(t *testing.T) {
	s := NewStatic(
		NewProductFact("c", "simple", false, nil),
		NewProductFact("a", "simple", false, nil),
		NewProductFact("b", "simple", false, nil),
		NewProductFact("d", "simple", false, nil),
	)
	ctx := context.Background()
	p1, err := s.SkuPage(ctx, "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, p1)
	p2, _ := s.SkuPage(ctx, "c", 3)
	assert.Equal(t, []string{"d"}, p2)
	p3, _ := s.SkuPage(ctx, "d", 3)
	assert.Empty(t, p3)
	// 游标本身不存在时从下一个更大的 SKU 开始
	p4, _ := s.SkuPage(ctx, "bb", 10)
	assert.Equal(t, []string{"c", "d"}, p4)
}

func TestStaticLoadBatchSkipsUnknown(t *testing.T) {
	s := NewStatic(NewProductFact("a", "simple", true, nil))
	f, err := s.LoadBatch(context.Background(), []string{"a", "zz"})
	require.NoError(t, err)
	assert.Len(t, f, 1)
	assert.True(t, f["a"].GlobalShipping)
}

func TestPostgresLoadBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_products WHERE enabled AND sku = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"sku", "type_code", "global_shipping"}).
			AddRow("S1", "simple", false).
			AddRow("C1", "configurable", false).
			AddRow("G1", "simple", true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM _sa_product_children WHERE parent_sku = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"parent_sku", "child_sku"}).
			AddRow("C1", "C1-RED").
			AddRow("C1", "C1-BLUE"))

	f, err := NewPostgres(db).LoadBatch(context.Background(), []string{"S1", "C1", "G1", "gone"})
	require.NoError(t, err)
	require.Len(t, f, 3)
	assert.Equal(t, Composite, f["C1"].Kind)
	assert.Equal(t, []string{"C1-RED", "C1-BLUE"}, f["C1"].Children)
	assert.True(t, f["G1"].GlobalShipping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	f, err := NewPostgres(db).LoadBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, f)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSkuPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sku FROM _sa_products WHERE enabled AND sku > $1")).
		WithArgs("b", 2).
		WillReturnRows(sqlmock.NewRows([]string{"sku"}).AddRow("c").AddRow("d"))
	page, err := NewPostgres(db).SkuPage(context.Background(), "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, page)
	assert.NoError(t, mock.ExpectationsWereMet())
}
