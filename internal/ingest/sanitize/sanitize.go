// Package sanitize holds the pure field cleaners applied to every candidate
// before persistence. Every transformation is idempotent and degrades bad
// input to an empty or clamped value instead of failing.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/basketlabs/shelfscout/internal/catalog/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// MaxKeywords caps the keyword list after deduplication.
const MaxKeywords = 25

var (
	htmlTagRe  = regexp.MustCompile(`<[^>]+>`)
	spaceRunRe = regexp.MustCompile(`\s+`)
	hexColorRe = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

	percentCeiling = decimal.NewFromInt(100)
)

// Text normalizes a free-text field: NFKC composition, zero-width and
// control characters removed, HTML tags stripped, whitespace runs collapsed.
func Text(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// URL keeps only http and https URLs; anything else becomes empty.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return ""
}

// HexColor validates a 3 or 6 digit hex color and normalizes it to a
// lowercase #-prefixed form. Invalid values become empty.
func HexColor(s string) string {
	s = strings.TrimSpace(s)
	if !hexColorRe.MatchString(s) {
		return ""
	}
	return "#" + strings.ToLower(strings.TrimPrefix(s, "#"))
}

// ClampPercent clamps a percentage to [0, 100].
func ClampPercent(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(percentCeiling) {
		return percentCeiling
	}
	return v
}

// Keywords lowercases and cleans each keyword, drops empties, deduplicates
// preserving first-seen order and caps the result at MaxKeywords.
func Keywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(Text(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clean applies every field rule to a record and reports what it had to fix.
// New warnings are appended, so cleaning an already clean record is a no-op.
func Clean(rec domain.FlatRecord) (domain.FlatRecord, []string) {
	var warnings []string

	rec.Name = Text(rec.Name)
	rec.Brand = Text(rec.Brand)
	rec.Description = Text(rec.Description)
	rec.UnitSize = Text(rec.UnitSize)
	rec.PromoText = Text(rec.PromoText)
	rec.InternalCategoryName = Text(rec.InternalCategoryName)
	rec.StoreCategory.Name = Text(rec.StoreCategory.Name)
	rec.StoreCategory.Description = Text(rec.StoreCategory.Description)

	if cleaned := URL(rec.ImageURL); cleaned != rec.ImageURL {
		if rec.ImageURL != "" && cleaned == "" {
			warnings = append(warnings, "image_url: dropped, scheme not allowed")
		}
		rec.ImageURL = cleaned
	}
	if cleaned := URL(rec.ProductURL); cleaned != rec.ProductURL {
		if rec.ProductURL != "" && cleaned == "" {
			warnings = append(warnings, "product_url: dropped, scheme not allowed")
		}
		rec.ProductURL = cleaned
	}
	if cleaned := URL(rec.StoreCategory.LogoURL); cleaned != rec.StoreCategory.LogoURL {
		if rec.StoreCategory.LogoURL != "" && cleaned == "" {
			warnings = append(warnings, "store_category_logo_url: dropped, scheme not allowed")
		}
		rec.StoreCategory.LogoURL = cleaned
	}

	if clamped := ClampPercent(rec.DiscountPercentage); !clamped.Equal(rec.DiscountPercentage) {
		warnings = append(warnings, fmt.Sprintf("discount_percentage: clamped %s to %s", rec.DiscountPercentage, clamped))
		rec.DiscountPercentage = clamped
	}
	if rec.Price.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("price: negative %s reset to 0", rec.Price))
		rec.Price = decimal.Zero
	}
	if rec.OriginalPrice.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("original_price: negative %s reset to 0", rec.OriginalPrice))
		rec.OriginalPrice = decimal.Zero
	}

	kept := Keywords(rec.Keywords)
	if len(rec.Keywords) > 0 && len(kept) < len(rec.Keywords) {
		warnings = append(warnings, fmt.Sprintf("keywords: reduced %d to %d", len(rec.Keywords), len(kept)))
	}
	rec.Keywords = kept

	rec.Warnings = append(rec.Warnings, warnings...)
	return rec, warnings
}
