package payment

type CreatePaymentReq struct {
	BorrowingID int64  `json:"borrowing_id" validate:"required,gt=0"`
	Type        string `json:"type" validate:"required,oneof=PAYMENT FINE"`
}
