package main

// eventMessage is the order lifecycle payload sent API -> SQS -> worker.
type eventMessage struct {
	Event       string  `json:"event"`
	OrderID     string  `json:"order_id"`
	UserID      string  `json:"user_id"`
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
}
