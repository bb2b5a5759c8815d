package catalog_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fulfillment-core/internal/catalog"
	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
)

type mockStoreResolver struct {
	resolveStoresFunc func(ctx context.Context, zip string) ([]coverage.ResolvedStore, error)
}

func (m *mockStoreResolver) ResolveStores(ctx context.Context, zip string) ([]coverage.ResolvedStore, error) {
	if m.resolveStoresFunc != nil {
		return m.resolveStoresFunc(ctx, zip)
	}
	return nil, coverage.ErrUnsupportedZip
}

type stockMap map[uuid.UUID]int

func (s stockMap) Available(_ context.Context, _, productID uuid.UUID) (int, error) {
	qty, ok := s[productID]
	if !ok {
		return 0, inventory.ErrItemNotFound
	}
	return qty, nil
}

type catalogFixture struct {
	repo    catalog.Repository
	stores  *mockStoreResolver
	stock   stockMap
	storeID uuid.UUID
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{
		repo:    catalog.NewMemoryRepository(),
		stores:  &mockStoreResolver{},
		stock:   make(stockMap),
		storeID: uuid.Must(uuid.NewV4()),
	}
	f.stores.resolveStoresFunc = func(_ context.Context, zip string) ([]coverage.ResolvedStore, error) {
		if zip == "100001" {
			return []coverage.ResolvedStore{{StoreID: f.storeID}}, nil
		}
		return nil, coverage.ErrUnsupportedZip
	}
	return f
}

func (f *catalogFixture) resolver(cfg catalog.ResolverConfig) *catalog.Resolver {
	return catalog.NewResolver(f.repo, f.stores, f.stock, cfg)
}

// listProduct seeds a category, product and store listing in one go and puts
// qty units in stock.
func (f *catalogFixture) listProduct(t *testing.T, r *catalog.Resolver, categoryOrder int, name string, approved, hidden bool, qty int) *catalog.Product {
	t.Helper()
	c := &catalog.Category{Name: name + " category", DisplayOrder: categoryOrder}
	require.NoError(t, r.CreateCategory(context.Background(), c))

	p := &catalog.Product{CategoryID: c.ID, Name: name, Approved: approved}
	require.NoError(t, r.CreateProduct(context.Background(), p))

	sp := &catalog.StoreProduct{StoreID: f.storeID, ProductID: p.ID, Price: 10, Hidden: hidden}
	require.NoError(t, r.UpsertStoreProduct(context.Background(), sp))

	if qty >= 0 {
		f.stock[p.ID] = qty
	}
	return p
}

func TestResolver_List_UnsupportedZip(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	_, err := r.List(context.Background(), "999999", nil)
	assert.ErrorIs(t, err, coverage.ErrUnsupportedZip)
}

func TestResolver_List_StoreNotServing(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})
	stranger := uuid.Must(uuid.NewV4())

	_, err := r.List(context.Background(), "100001", &stranger)
	assert.ErrorIs(t, err, catalog.ErrStoreNotServing)
}

func TestResolver_List_FiltersListings(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{Moderation: true})

	visible := f.listProduct(t, r, 1, "Whole milk", true, false, 5)
	f.listProduct(t, r, 2, "Hidden cheese", true, true, 5)
	f.listProduct(t, r, 3, "Unapproved yogurt", false, false, 5)
	f.listProduct(t, r, 4, "Sold-out bread", true, false, 0)
	f.listProduct(t, r, 5, "No ledger entry", true, false, -1)

	views, err := r.List(context.Background(), "100001", nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, visible.ID, views[0].ProductID)
	assert.True(t, views[0].InStock)
	assert.Equal(t, 5, views[0].AvailableQty)
}

func TestResolver_List_ModerationOff(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	f.listProduct(t, r, 1, "Unapproved yogurt", false, false, 5)

	views, err := r.List(context.Background(), "100001", nil)
	require.NoError(t, err)
	assert.Len(t, views, 1, "moderation off lists unapproved products")
}

func TestResolver_List_ShowOutOfStock(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{ShowOutOfStock: true})

	f.listProduct(t, r, 1, "Sold-out bread", true, false, 0)

	views, err := r.List(context.Background(), "100001", nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].InStock)
	assert.Zero(t, views[0].AvailableQty)
}

func TestResolver_List_OrderedByCategoryThenName(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	// Seeded out of order on purpose.
	f.listProduct(t, r, 2, "Apples", true, false, 5)
	f.listProduct(t, r, 1, "Zucchini", true, false, 5)
	f.listProduct(t, r, 1, "Carrots", true, false, 5)

	views, err := r.List(context.Background(), "100001", nil)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "Carrots", views[0].Name, "lower category display order comes first")
	assert.Equal(t, "Zucchini", views[1].Name)
	assert.Equal(t, "Apples", views[2].Name)
}

func TestResolver_CreateCategory_Slug(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	c := &catalog.Category{Name: "Fresh Produce"}
	require.NoError(t, r.CreateCategory(context.Background(), c))
	assert.Equal(t, "fresh-produce", c.Slug)
	assert.True(t, c.Active)

	err := r.CreateCategory(context.Background(), &catalog.Category{Name: "   "})
	assert.EqualError(t, err, "catalog: category name is required")
}

func TestResolver_CreateProduct_Validation(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	err := r.CreateProduct(context.Background(), &catalog.Product{CategoryID: uuid.Must(uuid.NewV4())})
	assert.EqualError(t, err, "catalog: product name is required")

	err = r.CreateProduct(context.Background(), &catalog.Product{Name: "Milk"})
	assert.EqualError(t, err, "catalog: category is required")
}

func TestResolver_UpsertStoreProduct_Validation(t *testing.T) {
	f := newCatalogFixture(t)
	r := f.resolver(catalog.ResolverConfig{})

	err := r.UpsertStoreProduct(context.Background(), &catalog.StoreProduct{Price: -1})
	assert.EqualError(t, err, "catalog: price must be non-negative")

	err = r.UpsertStoreProduct(context.Background(), &catalog.StoreProduct{
		StoreID:   f.storeID,
		ProductID: uuid.Must(uuid.NewV4()),
		Price:     10,
	})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}
