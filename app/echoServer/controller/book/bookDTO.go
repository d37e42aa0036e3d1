package book

type CreateBookReq struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author" validate:"required"`
	Cover     string `json:"cover" validate:"required,oneof=HARD SOFT"`
	Inventory int64  `json:"inventory" validate:"gte=0"`
	DailyFee  string `json:"daily_fee" validate:"required"`
}

type AddInventoryReq struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}
