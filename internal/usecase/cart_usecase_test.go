package usecase_test

import (
	"context"
	"testing"

	"neurostore-be/internal/domain/model"
	repo "neurostore-be/internal/repository"
	"neurostore-be/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type cartFixture struct {
	carts    *CartRepoMock
	items    *CartItemRepoMock
	products *ProductRepoMock
	uc       *usecase.CartUsecase
}

func newCartFixture() *cartFixture {
	f := &cartFixture{
		carts:    &CartRepoMock{},
		items:    &CartItemRepoMock{},
		products: &ProductRepoMock{},
	}
	f.uc = usecase.NewCartUsecase(f.carts, f.items, f.products)
	return f
}

func cartProduct(id int64, price string, stock int64) model.Product {
	return model.Product{
		ID:       id,
		Name:     "商品",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
}

func TestAddToCart_Success(t *testing.T) {
	f := newCartFixture()
	p := cartProduct(100, "29.99", 10)

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7, Status: model.CartStatusActive}, nil)
	f.products.On("FindByID", mock.Anything, int64(100)).Return(p, nil)
	f.items.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{}, nil).Once()
	f.items.On("UpsertByCartAndProduct", mock.Anything, int64(3), int64(100), int64(2), p.Price).Return(nil)
	f.items.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 100, Quantity: 2, UnitPriceSnapshot: p.Price},
	}, nil)

	out, err := f.uc.AddToCart(context.Background(), 7, usecase.AddCartInput{ProductID: 100, Quantity: 2})

	assert.NoError(t, err)
	if assert.Len(t, out.Items, 1) {
		assert.True(t, out.Total.Equal(decimal.RequireFromString("59.98")))
	}
	f.items.AssertExpectations(t)
}

// 既存分と合算して在庫を超えるなら追加できない
func TestAddToCart_StockExceededWithExistingQuantity(t *testing.T) {
	f := newCartFixture()
	p := cartProduct(100, "29.99", 5)

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7, Status: model.CartStatusActive}, nil)
	f.products.On("FindByID", mock.Anything, int64(100)).Return(p, nil)
	f.items.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 100, Quantity: 4, UnitPriceSnapshot: p.Price},
	}, nil)

	_, err := f.uc.AddToCart(context.Background(), 7, usecase.AddCartInput{ProductID: 100, Quantity: 2})

	assertErrContains(t, err, "stock exceeded")
	f.items.AssertNotCalled(t, "UpsertByCartAndProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_InactiveProductRejected(t *testing.T) {
	f := newCartFixture()
	p := cartProduct(100, "29.99", 10)
	p.IsActive = false

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7, Status: model.CartStatusActive}, nil)
	f.products.On("FindByID", mock.Anything, int64(100)).Return(p, nil)

	_, err := f.uc.AddToCart(context.Background(), 7, usecase.AddCartInput{ProductID: 100, Quantity: 1})

	assertErrContains(t, err, "invalid product")
}

// 他人の明細は404で隠す
func TestUpdateCartItem_ForeignItemHidden(t *testing.T) {
	f := newCartFixture()

	f.items.On("IsOwnedByUser", mock.Anything, int64(5), int64(7)).Return(false, nil)

	_, err := f.uc.UpdateCartItem(context.Background(), 7, 5, usecase.UpdateCartItemInput{Quantity: 2})

	he, ok := usecase.AsHTTPError(err)
	if assert.True(t, ok) {
		assert.Equal(t, 404, he.Status)
	}
	f.items.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCartItem_Success(t *testing.T) {
	f := newCartFixture()

	f.items.On("IsOwnedByUser", mock.Anything, int64(5), int64(7)).Return(true, nil)
	f.items.On("DeleteByID", mock.Anything, int64(5)).Return(nil)
	f.carts.On("FindActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.items.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{}, nil)

	out, err := f.uc.DeleteCartItem(context.Background(), 7, 5)

	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	f.items.AssertExpectations(t)
}

func TestActiveCartLines_BuildsOrderInput(t *testing.T) {
	f := newCartFixture()

	f.carts.On("FindActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.items.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 100, Quantity: 1, UnitPriceSnapshot: decimal.RequireFromString("29.99")},
		{ID: 2, CartID: 3, ProductID: 101, Quantity: 2, UnitPriceSnapshot: decimal.RequireFromString("10.00")},
	}, nil)

	lines, total, err := f.uc.ActiveCartLines(context.Background(), 7)

	assert.NoError(t, err)
	if assert.Len(t, lines, 2) {
		assert.Equal(t, int64(100), lines[0].ProductID)
		assert.Equal(t, int64(2), lines[1].Quantity)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("49.99")))
}

func TestActiveCartLines_EmptyCartRejected(t *testing.T) {
	f := newCartFixture()

	f.carts.On("FindActiveByUserID", mock.Anything, int64(7)).Return(model.Cart{}, repo.ErrNotFound)

	_, _, err := f.uc.ActiveCartLines(context.Background(), 7)

	assertErrContains(t, err, "cart empty")
}
