package filters

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// 目录只读表
const (
	VariantTable           = "product_variants"
	VariantFacetValueTable = "product_variant_facet_values"
	ProductFacetValueTable = "product_facet_values"
)

// 内置过滤器 code
const (
	FacetValueFilterCode   = "facet-value-filter"
	VariantNameFilterCode  = "variant-name-filter"
	VariantIDFilterCode    = "variant-id-filter"
	ProductIDFilterCode    = "product-id-filter"
	VariantPriceFilterCode = "variant-price-filter"
)

const (
	variantHasAnyFacet = "product_variants.id IN (SELECT product_variant_id FROM " + VariantFacetValueTable + " WHERE facet_value_id IN ?)"
	productHasAnyFacet = "product_variants.product_id IN (SELECT product_id FROM " + ProductFacetValueTable + " WHERE facet_value_id IN ?)"
	variantHasFacet    = "product_variants.id IN (SELECT product_variant_id FROM " + VariantFacetValueTable + " WHERE facet_value_id = ?)"
	productHasFacet    = "product_variants.product_id IN (SELECT product_id FROM " + ProductFacetValueTable + " WHERE facet_value_id = ?)"
)

// Builtins 内置过滤器
func Builtins() []*Definition {
	return []*Definition{
		FacetValueFilter(),
		VariantNameFilter(),
		VariantIDFilter(),
		ProductIDFilter(),
		VariantPriceFilter(),
	}
}

// FacetValueFilter 按 facet value 过滤，规格或其商品带有 facet value 即视为命中
func FacetValueFilter() *Definition {
	return &Definition{
		Code:        FacetValueFilterCode,
		Description: "Filter by facet values",
		Args: []ArgDefinition{
			{Name: "facetValueIds", Type: ArgID, List: true, Required: true, Label: "Facet values"},
			{Name: "containsAny", Type: ArgBoolean, DefaultValue: "false", Label: "Contains any"},
		},
		Apply: func(q *gorm.DB, args Args) (*gorm.DB, error) {
			ids, err := args.IDs("facetValueIds")
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return q, nil
			}
			if args.Bool("containsAny") {
				return q.Where("("+variantHasAnyFacet+" OR "+productHasAnyFacet+")", ids, ids), nil
			}
			for _, id := range ids {
				q = q.Where("("+variantHasFacet+" OR "+productHasFacet+")", id, id)
			}
			return q, nil
		},
	}
}

// VariantNameFilter 按规格名称过滤 (忽略大小写)
func VariantNameFilter() *Definition {
	return &Definition{
		Code:        VariantNameFilterCode,
		Description: "Filter by product variant name",
		Args: []ArgDefinition{
			{
				Name:     "operator",
				Type:     ArgString,
				Required: true,
				Options:  []string{"contains", "doesNotContain", "beginsWith", "endsWith"},
				Label:    "Operator",
			},
			{Name: "term", Type: ArgString, Required: true, Label: "Term"},
		},
		Apply: func(q *gorm.DB, args Args) (*gorm.DB, error) {
			term := escapeLike(strings.ToLower(args.String("term")))
			const column = "LOWER(product_variants.name)"
			switch op := args.String("operator"); op {
			case "contains":
				return q.Where(column+" LIKE ? ESCAPE '\\'", "%"+term+"%"), nil
			case "doesNotContain":
				return q.Where(column+" NOT LIKE ? ESCAPE '\\'", "%"+term+"%"), nil
			case "beginsWith":
				return q.Where(column+" LIKE ? ESCAPE '\\'", term+"%"), nil
			case "endsWith":
				return q.Where(column+" LIKE ? ESCAPE '\\'", "%"+term), nil
			default:
				return nil, fmt.Errorf("unsupported operator %q", op)
			}
		},
	}
}

// VariantIDFilter 指定规格。combineWithAnd=false 时与前面的过滤器取并集
func VariantIDFilter() *Definition {
	return &Definition{
		Code:        VariantIDFilterCode,
		Description: "Manually select product variants",
		Args: []ArgDefinition{
			{Name: "variantIds", Type: ArgID, List: true, Required: true, Label: "Product variants"},
			{Name: "combineWithAnd", Type: ArgBoolean, DefaultValue: "true", Label: "Combine with AND"},
		},
		Apply: func(q *gorm.DB, args Args) (*gorm.DB, error) {
			ids, err := args.IDs("variantIds")
			if err != nil {
				return nil, err
			}
			return combineIDs(q, "product_variants.id IN ?", ids, args.Bool("combineWithAnd")), nil
		},
	}
}

// ProductIDFilter 指定商品的全部规格。combineWithAnd=false 时取并集
func ProductIDFilter() *Definition {
	return &Definition{
		Code:        ProductIDFilterCode,
		Description: "Manually select products",
		Args: []ArgDefinition{
			{Name: "productIds", Type: ArgID, List: true, Required: true, Label: "Products"},
			{Name: "combineWithAnd", Type: ArgBoolean, DefaultValue: "true", Label: "Combine with AND"},
		},
		Apply: func(q *gorm.DB, args Args) (*gorm.DB, error) {
			ids, err := args.IDs("productIds")
			if err != nil {
				return nil, err
			}
			return combineIDs(q, "product_variants.product_id IN ?", ids, args.Bool("combineWithAnd")), nil
		},
	}
}

// VariantPriceFilter 按价格区间过滤 (闭区间，最小货币单位)
func VariantPriceFilter() *Definition {
	return &Definition{
		Code:        VariantPriceFilterCode,
		Description: "Filter by product variant price",
		Args: []ArgDefinition{
			{Name: "minPrice", Type: ArgInt, Label: "Minimum price"},
			{Name: "maxPrice", Type: ArgInt, Label: "Maximum price"},
		},
		Apply: func(q *gorm.DB, args Args) (*gorm.DB, error) {
			if lo, ok := args.Int("minPrice"); ok {
				q = q.Where("product_variants.price >= ?", lo)
			}
			if hi, ok := args.Int("maxPrice"); ok {
				q = q.Where("product_variants.price <= ?", hi)
			}
			return q, nil
		},
	}
}

func combineIDs(q *gorm.DB, clause string, ids []string, and bool) *gorm.DB {
	if and {
		if len(ids) == 0 {
			return q.Where("1 = 0")
		}
		return q.Where(clause, ids)
	}
	if len(ids) == 0 {
		return q
	}
	return q.Or(clause, ids)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
