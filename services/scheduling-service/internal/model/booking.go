package model

import "time"

type Booking struct {
	ID            string
	MerchantID    string
	CustomerName  string
	CustomerEmail string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}
