// internal/usecase/cart_usecase.go
package usecase

import (
	"context"
	"errors"

	repo "neurostore-be/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
// Cart と CartItem は別Repositoryとして受け取ります。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// price は unit_price_snapshot（追加時点の価格）を返します。
type CartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewUnauthorizedError()
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewUnauthorizedError()
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewValidationError("invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewValidationError("invalid quantity")
	}

	// ACTIVEカート取得（無ければ作成）
	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, NewValidationError("invalid product")
	}
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewValidationError("invalid product")
	}

	// 既存数量は ListByCartID で調べる（専用Findは増やさない）
	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	var existingQty int64 = 0
	for _, it := range items {
		if it.ProductID == in.ProductID {
			existingQty = it.Quantity
			break
		}
	}

	newQty := existingQty + in.Quantity
	if newQty > p.Stock {
		return CartResponse{}, NewBusinessRuleError("stock exceeded")
	}

	// Upsert（同一商品は加算）
	// unit_price_snapshot は「追加時点の価格」を渡す
	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity, p.Price); err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック＋在庫チェック）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewUnauthorizedError()
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewValidationError("invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewValidationError("invalid quantity")
	}

	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	if !owned {
		return CartResponse{}, NewNotFoundError("not found")
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, NewNotFoundError("not found")
	}
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	//商品の在庫チェック
	p, err := u.productRepo.FindByID(ctx, item.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, NewValidationError("invalid product")
	}
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewValidationError("invalid product")
	}
	if in.Quantity > p.Stock {
		return CartResponse{}, NewBusinessRuleError("stock exceeded")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, NewNotFoundError("not found")
		}
		return CartResponse{}, NewInternalError("db error")
	}

	//ACTIVEカートを取得して返却
	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewUnauthorizedError()
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewValidationError("invalid id")
	}

	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	if !owned {
		return CartResponse{}, NewNotFoundError("not found")
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, NewNotFoundError("not found")
		}
		return CartResponse{}, NewInternalError("db error")
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// TEMP注文の作成用。ACTIVEカートの中身を注文明細の入力形式に変換する。
func (u *CartUsecase) ActiveCartLines(ctx context.Context, userID int64) ([]OrderLineInput, decimal.Decimal, error) {
	if userID <= 0 {
		return nil, decimal.Zero, NewUnauthorizedError()
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, decimal.Zero, NewValidationError("cart empty")
	}
	if err != nil {
		return nil, decimal.Zero, NewInternalError("db error")
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return nil, decimal.Zero, NewInternalError("db error")
	}
	if len(items) == 0 {
		return nil, decimal.Zero, NewValidationError("cart empty")
	}

	lines := make([]OrderLineInput, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		lines = append(lines, OrderLineInput{ProductID: it.ProductID, Quantity: it.Quantity})
		total = total.Add(it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return lines, total, nil
}

// cartIDの明細をまとめてCartResponseを作る。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, NewInternalError("db error")
	}

	respItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		if !p.IsActive {
			continue
		}

		respItems = append(respItems, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})

		total = total.Add(it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity)))
	}

	return CartResponse{Items: respItems, Total: total}, nil
}
