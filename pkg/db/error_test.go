package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm sentinel", fmt.Errorf("upsert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "uq_products_source_product" (SQLSTATE 23505)`), true},
		{"mysql", errors.New("Error 1062 (23000): Duplicate entry 'p-1-2' for key 'uq_products_source_product'"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: products.product_id, products.source_id"), true},
		{"unrelated", errors.New("connection refused"), false},
		{"record not found", gorm.ErrRecordNotFound, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}
