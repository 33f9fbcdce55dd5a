package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wb_reviews/internal/app"
	"wb_reviews/internal/domain"
)

func TestAdd_Statuses(t *testing.T) {
	st, gw := newMemStore(), newFakeGateway()
	gw.products["100"] = domain.ProductInfo{Article: "100", Name: "Widget"}
	svc := app.NewCommandService(st, gw, nil)
	ctx := context.Background()

	res, err := svc.Add(ctx, " 100 ")
	require.NoError(t, err)
	assert.Equal(t, app.AddOK, res.Status)
	assert.Equal(t, "Widget", res.Product.Name)
	assert.NotZero(t, res.Product.ID)
	assert.Contains(t, res.Message(), "Widget")

	res, err = svc.Add(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, app.AddAlreadyTracked, res.Status)

	res, err = svc.Add(ctx, "999")
	require.NoError(t, err)
	assert.Equal(t, app.AddNotFound, res.Status)

	res, err = svc.Add(ctx, "12a")
	require.NoError(t, err)
	assert.Equal(t, app.AddInvalid, res.Status)

	gw.productErr = fmt.Errorf("%w: remote 503", domain.ErrTransient)
	res, err = svc.Add(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, app.AddUnavailable, res.Status)
	assert.NotEqual(t, app.AddNotFound, res.Status)

	_, ok := st.product("999")
	assert.False(t, ok)
	_, ok = st.product("555")
	assert.False(t, ok)
}

func TestAdd_InvalidatesProductList(t *testing.T) {
	st, gw, cache := newMemStore(), newFakeGateway(), newJSONCache()
	gw.products["100"] = domain.ProductInfo{Article: "100", Name: "Widget"}
	q := app.NewQueryService(st, cache, time.Minute)
	ctx := context.Background()

	ps, err := q.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps)

	_, err = app.NewCommandService(st, gw, cache).Add(ctx, "100")
	require.NoError(t, err)

	ps, err = q.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "100", ps[0].Article)
}

func TestRemove(t *testing.T) {
	st, gw, sink := newMemStore(), newFakeGateway(), &fakeSink{}
	st.addProduct("100", "Widget")
	gw.reviews["100"] = []domain.ReviewRecord{rec("r1", 1, "bad", day)}
	newReconciler(st, gw, sink, nil, app.ReconcileOptions{}).RunCycle(context.Background())
	require.Len(t, st.reviews(), 1)

	svc := app.NewCommandService(st, gw, nil)

	res, err := svc.Remove(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, app.RemoveOK, res.Status)
	assert.Empty(t, st.reviews(), "reviews go with their product")

	res, err = svc.Remove(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, app.RemoveNotFound, res.Status)

	_, err = svc.Remove(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidArticle)
	assert.Equal(t, "Invalid article: use digits only.", app.ErrorMessage(err))
}

func TestValidArticle(t *testing.T) {
	for in, want := range map[string]bool{
		"123456": true,
		"":       false,
		"12 3":   false,
		"-1":     false,
	} {
		assert.Equal(t, want, app.ValidArticle(in), in)
	}
}
