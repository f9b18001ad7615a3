package processor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/history"
)

// fakeShop records every write so tests can assert ordering and counts.
type fakeShop struct {
	mu         sync.Mutex
	product    domain.Product
	metafields []domain.Metafield

	updates     []domain.ProductUpdate
	writeOrder  []string
	updateErr   error
	metafieldID int64
}

func newFakeShop(product domain.Product) *fakeShop {
	return &fakeShop{product: product}
}

func (f *fakeShop) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.product.ID {
		return nil, errors.New("not found")
	}
	copied := f.product
	return &copied, nil
}

func (f *fakeShop) UpdateProduct(_ context.Context, update domain.ProductUpdate) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, update)
	f.writeOrder = append(f.writeOrder, "product")
	copied := f.product
	return &copied, nil
}

func (f *fakeShop) ListMetafields(_ context.Context, _ int64) ([]domain.Metafield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Metafield, len(f.metafields))
	copy(out, f.metafields)
	return out, nil
}

func (f *fakeShop) CreateMetafield(_ context.Context, productID int64, mf domain.Metafield) (*domain.Metafield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metafieldID++
	mf.ID = f.metafieldID
	mf.OwnerID = productID
	f.metafields = append(f.metafields, mf)
	f.writeOrder = append(f.writeOrder, mf.Key)
	return &mf, nil
}

func (f *fakeShop) UpdateMetafield(_ context.Context, mf domain.Metafield) (*domain.Metafield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.metafields {
		if f.metafields[i].ID == mf.ID {
			f.metafields[i].Value = mf.Value
		}
	}
	f.writeOrder = append(f.writeOrder, mf.Key)
	return &mf, nil
}

func (f *fakeShop) stamp() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, mf := range f.metafields {
		if mf.Namespace == domain.MetafieldNamespace && mf.Key == domain.MetafieldKeyStamp {
			return mf.Value
		}
	}
	return ""
}

type staticClassifier struct {
	result domain.Classification
	calls  int
}

func (s *staticClassifier) Classify(_ context.Context, _ *domain.Product) domain.Classification {
	s.calls++
	return s.result
}

type memoryHistory struct {
	entries []history.Entry
}

func (m *memoryHistory) Record(_ context.Context, entry history.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func testProduct() domain.Product {
	return domain.Product{
		ID:        10,
		Title:     "Vitamin C Serum",
		Vendor:    "Acme",
		Tags:      "Gift, Serum",
		UpdatedAt: "2026-08-01T12:00:00Z",
	}
}

func testClassification() domain.Classification {
	return domain.Classification{
		Category:       "Beauty > Skincare > Face Serums",
		Tags:           []string{"serum", "skincare", "acme"},
		SEOTitle:       "Acme Vitamin C Serum",
		SEODescription: "Shop Vitamin C Serum by Acme. Quality face serums with fast shipping.",
		Confidence:     0.9,
		Method:         domain.MethodRules,
	}
}

func TestProcessWritesAndStamps(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	hist := &memoryHistory{}
	proc := New(shop, clf, hist, "en", nil, nil)

	outcome, err := proc.Process(context.Background(), &product, Options{Source: "webhook"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, outcome.Status)

	require.Len(t, shop.updates, 1)
	update := shop.updates[0]
	assert.Equal(t, "Beauty > Skincare > Face Serums", update.ProductType)
	assert.Equal(t, "Gift, Serum, skincare, acme", update.Tags)

	assert.Equal(t, product.UpdatedAt, shop.stamp())
	require.NotEmpty(t, shop.writeOrder)
	assert.Equal(t, "product", shop.writeOrder[0])
	assert.Equal(t, domain.MetafieldKeyStamp, shop.writeOrder[len(shop.writeOrder)-1], "stamp must be the final write")

	require.Len(t, hist.entries, 1)
	assert.Equal(t, "webhook", hist.entries[0].Source)
	assert.Equal(t, StatusProcessed, hist.entries[0].Status)
}

func TestProcessIsIdempotent(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	first, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, first.Status)

	second, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)

	assert.Len(t, shop.updates, 1, "second call must not write")
	assert.Equal(t, 1, clf.calls, "second call must not classify")
}

func TestProcessReprocessesNewRevision(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)

	product.UpdatedAt = "2026-08-02T08:00:00Z"
	outcome, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, outcome.Status)
	assert.Equal(t, "2026-08-02T08:00:00Z", shop.stamp())
}

func TestProcessForceBypassesStamp(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)

	outcome, err := proc.Process(context.Background(), &product, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, outcome.Status)
	assert.Len(t, shop.updates, 2)
}

func TestProcessDryRun(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	outcome, err := proc.Process(context.Background(), &product, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, outcome.Status)
	require.NotNil(t, outcome.Written)
	assert.Empty(t, shop.updates, "dry run must not touch the remote API")
	assert.Empty(t, shop.metafields)
}

func TestProcessKeepsStrongSEO(t *testing.T) {
	product := testProduct()
	product.SEOTitle = "A carefully handcrafted SEO title over forty characters long"
	product.SEODescription = "short"
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)

	require.Len(t, shop.updates, 1)
	assert.Empty(t, shop.updates[0].SEOTitle, "strong title must be preserved")
	assert.Equal(t, testClassification().SEODescription, shop.updates[0].SEODescription, "weak description must be replaced")
}

func TestProcessReplaceSEOOverwrites(t *testing.T) {
	product := testProduct()
	product.SEOTitle = "A carefully handcrafted SEO title over forty characters long"
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{ReplaceSEO: true})
	require.NoError(t, err)
	assert.Equal(t, testClassification().SEOTitle, shop.updates[0].SEOTitle)
}

func TestProcessSEOOnly(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{SEOOnly: true, ReplaceSEO: true})
	require.NoError(t, err)

	require.Len(t, shop.updates, 1)
	assert.Empty(t, shop.updates[0].Tags)
	assert.Empty(t, shop.updates[0].ProductType)
	assert.NotEmpty(t, shop.updates[0].SEOTitle)
}

func TestProcessManualClassification(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	clf := &staticClassifier{result: testClassification()}
	proc := New(shop, clf, nil, "en", nil, nil)

	manual := &domain.Classification{Category: "Gifts > Sets", Tags: []string{"gift set"}}
	outcome, err := proc.Process(context.Background(), &product, Options{Manual: manual, Force: true})
	require.NoError(t, err)

	assert.Zero(t, clf.calls, "manual classification must bypass the classifier")
	assert.Equal(t, domain.MethodManual, outcome.Classification.Method)
	assert.InDelta(t, 1.0, outcome.Classification.Confidence, 0.001)
	assert.Equal(t, "Gifts > Sets", shop.updates[0].ProductType)
}

func TestProcessFailureLeavesUnstamped(t *testing.T) {
	product := testProduct()
	shop := newFakeShop(product)
	shop.updateErr = errors.New("boom")
	clf := &staticClassifier{result: testClassification()}
	hist := &memoryHistory{}
	proc := New(shop, clf, hist, "en", nil, nil)

	_, err := proc.Process(context.Background(), &product, Options{})
	require.Error(t, err)
	assert.Empty(t, shop.stamp(), "failed write must leave the product unstamped")

	require.Len(t, hist.entries, 1)
	assert.Equal(t, "failed", hist.entries[0].Status)
	assert.NotEmpty(t, hist.entries[0].Error)

	// Retry after the failure clears redoes the full merge.
	shop.updateErr = nil
	outcome, err := proc.Process(context.Background(), &product, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, outcome.Status)
	assert.Equal(t, product.UpdatedAt, shop.stamp())
}

func TestProcessByIDRequiresID(t *testing.T) {
	proc := New(newFakeShop(testProduct()), &staticClassifier{}, nil, "en", nil, nil)
	_, err := proc.ProcessByID(context.Background(), 0, Options{})
	assert.ErrorIs(t, err, ErrMissingProduct)
}

func TestMergeTags(t *testing.T) {
	merged := MergeTags([]string{"Gift", "gift", "Serum"}, []string{"serum", "Brightening"}, false)
	assert.Equal(t, []string{"Gift", "Serum", "Brightening"}, merged)
}

func TestMergeTagsReplace(t *testing.T) {
	merged := MergeTags([]string{"Old", "Tags"}, []string{"fresh"}, true)
	assert.Equal(t, []string{"fresh"}, merged)
}

func TestMergeTagsCap(t *testing.T) {
	var incoming []string
	for i := range 40 {
		incoming = append(incoming, string(rune('a'+i%26))+string(rune('0'+i%10)))
	}
	merged := MergeTags(nil, incoming, false)
	assert.LessOrEqual(t, len(merged), 25)
}

func TestShouldOverwriteSEO(t *testing.T) {
	assert.True(t, shouldOverwriteSEO("", weakSEOTitleLen, false))
	assert.True(t, shouldOverwriteSEO("short title", weakSEOTitleLen, false))
	assert.False(t, shouldOverwriteSEO("A carefully handcrafted SEO title over forty chars", weakSEOTitleLen, false))
	assert.True(t, shouldOverwriteSEO("A carefully handcrafted SEO title over forty chars", weakSEOTitleLen, true))
}
