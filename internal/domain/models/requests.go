package models

// Requests for the read-only HTTP surface.

type TradesRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=1000"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}
