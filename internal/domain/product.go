package domain

import "time"

type Product struct {
	ID          int64
	Article     string // marketplace catalog id, natural key
	Name        string
	LastChecked *time.Time
	CreatedAt   time.Time
}

// ProductInfo is the gateway's view of a product.
type ProductInfo struct {
	Article string
	Name    string
}
