// Package order
package order

import (
	"strings"
	"time"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Type string

const (
	Limit  Type = "limit"
	Market Type = "market"
)

type Status string

const (
	StatusNew             Status = "NEW"
	StatusFilled          Status = "FILLED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// ParseStatus maps exchange status strings onto Status.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FILLED", "DONE", "CLOSED":
		return StatusFilled
	case "PARTIALLY_FILLED", "PARTIAL", "PARTIALLY-FILLED":
		return StatusPartiallyFilled
	case "CANCELED", "CANCELLED":
		return StatusCanceled
	case "REJECTED":
		return StatusRejected
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusNew
	}
}

// Request represents a new order to be submitted. Notional is the quote
// amount the caller wants to trade; gateways derive Quantity from it when
// Quantity is zero.
type Request struct {
	Symbol            string
	Side              Side
	Type              Type
	Price             float64
	Quantity          float64
	Notional          float64
	ImmediateOrCancel bool
}

// Qty returns the requested base quantity.
func (r Request) Qty() float64 {
	if r.Quantity > 0 || r.Price <= 0 {
		return r.Quantity
	}
	return r.Notional / r.Price
}

// Fill is the exchange's answer to a Request.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      Side
	Status    Status
	FilledQty float64
	AvgPrice  float64
	Timestamp time.Time
}

// Filled reports whether any quantity was executed.
func (f Fill) Filled() bool {
	return (f.Status == StatusFilled || f.Status == StatusPartiallyFilled) && f.FilledQty > 0
}

// Notional returns the executed quote amount, using fallbackPrice when the
// exchange did not report an average price.
func (f Fill) Notional(fallbackPrice float64) float64 {
	return f.FilledQty * f.Price(fallbackPrice)
}

// Price returns the average fill price or fallbackPrice.
func (f Fill) Price(fallbackPrice float64) float64 {
	if f.AvgPrice > 0 {
		return f.AvgPrice
	}
	return fallbackPrice
}
