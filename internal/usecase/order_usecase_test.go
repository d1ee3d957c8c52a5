package usecase_test

import (
	"context"
	"testing"
	"time"

	"neurostore-be/internal/domain/model"
	repo "neurostore-be/internal/repository"
	"neurostore-be/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type orderFixture struct {
	tx        *TxManagerMock
	orders    *OrderRepoMock
	items     *OrderItemRepoMock
	addresses *AddressRepoMock
	products  *ProductRepoMock
	inventory *InventoryRepoMock
	publisher *PublisherMock
	uc        *usecase.OrderUsecase
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		orders:    new(OrderRepoMock),
		items:     new(OrderItemRepoMock),
		addresses: new(AddressRepoMock),
		products:  new(ProductRepoMock),
		inventory: new(InventoryRepoMock),
		publisher: new(PublisherMock),
	}
	f.tx = &TxManagerMock{Repos: &TxReposMock{
		orders:     f.orders,
		orderItems: f.items,
		inventory:  f.inventory,
		products:   f.products,
	}}
	f.uc = usecase.NewOrderUsecase(f.tx, f.orders, f.items, f.addresses, f.products, f.publisher, &fakeClock{now: testNow})
	return f
}

func activeProduct(id int64, price string) model.Product {
	return model.Product{
		ID:       id,
		Name:     "EEG Kit",
		Price:    decimal.RequireFromString(price),
		Stock:    100,
		IsActive: true,
	}
}

func validCreateInput() usecase.CreateTempOrderInput {
	return usecase.CreateTempOrderInput{
		AddressID: 5,
		Source:    "BUY_NOW",
		Lines:     []usecase.OrderLineInput{{ProductID: 100, Quantity: 2}},
		Total:     decimal.RequireFromString("59.98"),
	}
}

func TestCreateTempOrder_Success(t *testing.T) {
	f := newOrderFixture()

	f.addresses.On("FindByID", mock.Anything, int64(5)).Return(model.Address{ID: 5, UserID: 7}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("CountActiveTemp", mock.Anything, int64(7)).Return(int64(0), nil)
	f.products.On("FindByID", mock.Anything, int64(100)).Return(activeProduct(100, "29.99"), nil)

	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.UserID == 7 &&
			o.Status == model.OrderStatusTemp &&
			o.TotalAmount.Equal(decimal.RequireFromString("59.98")) &&
			o.ExpiresAt != nil &&
			o.ExpiresAt.Equal(testNow.Add(30*time.Minute))
	})).Return(int64(42), nil)
	f.items.On("CreateBulk", mock.Anything, int64(42), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 1 &&
			items[0].ProductID == 100 &&
			items[0].Quantity == 2 &&
			items[0].UnitPriceSnapshot.Equal(decimal.RequireFromString("29.99"))
	})).Return(nil)

	expires := testNow.Add(30 * time.Minute)
	created := model.Order{
		ID: 42, UserID: 7, Status: model.OrderStatusTemp, Source: model.OrderSourceBuyNow,
		TotalAmount: decimal.RequireFromString("59.98"), ExpiresAt: &expires,
	}
	f.orders.On("FindByID", mock.Anything, int64(42)).Return(created, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{OrderID: 42, ProductID: 100, ProductNameSnapshot: "EEG Kit", UnitPriceSnapshot: decimal.RequireFromString("29.99"), Quantity: 2},
	}, nil)

	out, err := f.uc.CreateTempOrder(context.Background(), 7, validCreateInput())

	assert.NoError(t, err)
	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, "TEMP", out.Status)
	assert.True(t, out.TotalAmount.Equal(decimal.RequireFromString("59.98")))
	f.orders.AssertExpectations(t)
	f.items.AssertExpectations(t)
}

func TestCreateTempOrder_Validation(t *testing.T) {
	f := newOrderFixture()

	tests := []struct {
		name   string
		userID int64
		mut    func(*usecase.CreateTempOrderInput)
		want   string
	}{
		{"未認証", 0, func(in *usecase.CreateTempOrderInput) {}, "unauthorized"},
		{"住所なし", 7, func(in *usecase.CreateTempOrderInput) { in.AddressID = 0 }, "invalid address_id"},
		{"不正なsource", 7, func(in *usecase.CreateTempOrderInput) { in.Source = "SUBSCRIPTION" }, "invalid source"},
		{"明細なし", 7, func(in *usecase.CreateTempOrderInput) { in.Lines = nil }, "lines required"},
		{"数量ゼロ", 7, func(in *usecase.CreateTempOrderInput) { in.Lines[0].Quantity = 0 }, "invalid quantity"},
		{"数量過大", 7, func(in *usecase.CreateTempOrderInput) { in.Lines[0].Quantity = 101 }, "invalid quantity"},
		{"商品ID不正", 7, func(in *usecase.CreateTempOrderInput) { in.Lines[0].ProductID = 0 }, "invalid product_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreateInput()
			tt.mut(&in)
			_, err := f.uc.CreateTempOrder(context.Background(), tt.userID, in)
			assertErrContains(t, err, tt.want)
		})
	}
}

func TestCreateTempOrder_TooManyLines(t *testing.T) {
	f := newOrderFixture()

	in := validCreateInput()
	in.Lines = make([]usecase.OrderLineInput, 51)
	for i := range in.Lines {
		in.Lines[i] = usecase.OrderLineInput{ProductID: int64(i + 1), Quantity: 1}
	}

	_, err := f.uc.CreateTempOrder(context.Background(), 7, in)
	assertErrContains(t, err, "too many lines")
}

func TestCreateTempOrder_DuplicateProduct(t *testing.T) {
	f := newOrderFixture()

	in := validCreateInput()
	in.Lines = []usecase.OrderLineInput{
		{ProductID: 100, Quantity: 1},
		{ProductID: 100, Quantity: 2},
	}

	_, err := f.uc.CreateTempOrder(context.Background(), 7, in)
	assertErrContains(t, err, "duplicate product")
}

func TestCreateTempOrder_ForeignAddress(t *testing.T) {
	f := newOrderFixture()

	//他人の住所
	f.addresses.On("FindByID", mock.Anything, int64(5)).Return(model.Address{ID: 5, UserID: 99}, nil)

	_, err := f.uc.CreateTempOrder(context.Background(), 7, validCreateInput())

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, usecase.CodeForbidden, he.Code)
}

// 未決済TEMPは1ユーザー3件まで
func TestCreateTempOrder_TempCapExceeded(t *testing.T) {
	f := newOrderFixture()

	f.addresses.On("FindByID", mock.Anything, int64(5)).Return(model.Address{ID: 5, UserID: 7}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("CountActiveTemp", mock.Anything, int64(7)).Return(int64(3), nil)

	_, err := f.uc.CreateTempOrder(context.Background(), 7, validCreateInput())

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, usecase.CodeBusinessRule, he.Code)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// クライアント合計とサーバー再計算の不一致は1セントでも拒否
func TestCreateTempOrder_TotalMismatch(t *testing.T) {
	f := newOrderFixture()

	f.addresses.On("FindByID", mock.Anything, int64(5)).Return(model.Address{ID: 5, UserID: 7}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("CountActiveTemp", mock.Anything, int64(7)).Return(int64(0), nil)
	f.products.On("FindByID", mock.Anything, int64(100)).Return(activeProduct(100, "29.99"), nil)

	in := validCreateInput()
	in.Total = decimal.RequireFromString("59.97")

	_, err := f.uc.CreateTempOrder(context.Background(), 7, in)
	assertErrContains(t, err, "total mismatch")
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateTempOrder_InactiveProduct(t *testing.T) {
	f := newOrderFixture()

	f.addresses.On("FindByID", mock.Anything, int64(5)).Return(model.Address{ID: 5, UserID: 7}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("CountActiveTemp", mock.Anything, int64(7)).Return(int64(0), nil)

	p := activeProduct(100, "29.99")
	p.IsActive = false
	f.products.On("FindByID", mock.Anything, int64(100)).Return(p, nil)

	_, err := f.uc.CreateTempOrder(context.Background(), 7, validCreateInput())
	assertErrContains(t, err, "product not available")
}

func TestGetOrder_HidesForeignOrders(t *testing.T) {
	f := newOrderFixture()

	f.orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 99}, nil)

	_, err := f.uc.GetOrder(context.Background(), 7, 10)

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	//403ではなく404（存在を漏らさない）
	assert.Equal(t, usecase.CodeNotFound, he.Code)
}

func TestCancelOrder_TempOrder(t *testing.T) {
	f := newOrderFixture()
	order := tempOrder(30)

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(30)).Return(order, nil)
	f.orders.On("Cancel", mock.Anything, int64(30), "changed my mind").Return(nil)

	cancelled := order
	cancelled.Status = model.OrderStatusCancelled
	cancelled.CancellationReason = "changed my mind"
	f.orders.On("FindByID", mock.Anything, int64(30)).Return(cancelled, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(30)).Return(orderItems(30), nil)
	f.publisher.On("PublishOrderCancelled", mock.Anything, mock.Anything).Return(nil)

	out, err := f.uc.CancelOrder(context.Background(), 7, 30, "changed my mind")

	assert.NoError(t, err)
	assert.Equal(t, "CANCELLED", out.Status)
	//TEMPは在庫を減らしていないので戻しは走らない
	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

// PROCESSINGのキャンセルは在庫を戻す
func TestCancelOrder_ProcessingRestoresStock(t *testing.T) {
	f := newOrderFixture()
	order := tempOrder(31)
	order.Status = model.OrderStatusProcessing

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(31)).Return(order, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(31)).Return(orderItems(31), nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(100), int64(1)).Return(nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(101), int64(2)).Return(nil)
	f.orders.On("Cancel", mock.Anything, int64(31), "customer request").Return(nil)

	cancelled := order
	cancelled.Status = model.OrderStatusCancelled
	f.orders.On("FindByID", mock.Anything, int64(31)).Return(cancelled, nil)
	f.publisher.On("PublishOrderCancelled", mock.Anything, mock.Anything).Return(nil)

	_, err := f.uc.CancelOrder(context.Background(), 7, 31, "")

	assert.NoError(t, err)
	f.inventory.AssertExpectations(t)
}

func TestCancelOrder_PaidRejected(t *testing.T) {
	f := newOrderFixture()
	order := tempOrder(32)
	order.Status = model.OrderStatusPaid

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(32)).Return(order, nil)

	_, err := f.uc.CancelOrder(context.Background(), 7, 32, "")

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, usecase.CodeInvalidState, he.Code)
	f.orders.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOrder_NotFound(t *testing.T) {
	f := newOrderFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(404)).Return(model.Order{}, repo.ErrNotFound)

	_, err := f.uc.CancelOrder(context.Background(), 7, 404, "")

	he, ok := usecase.AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, usecase.CodeNotFound, he.Code)
}
