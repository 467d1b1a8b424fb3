package data

import (
	"time"

	"gorm.io/datatypes"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/filters"
)

// CollectionPO 集合持久化对象
type CollectionPO struct {
	ID             string                              `gorm:"primaryKey;size:64"`
	IsRoot         bool                                `gorm:"not null;index:idx_collection_root"`
	IsPrivate      bool                                `gorm:"not null"`
	Position       int                                 `gorm:"not null"`
	InheritFilters bool                                `gorm:"not null"`
	Filters        datatypes.JSONType[[]domain.Filter] `gorm:"not null"`
	ParentID       *string                             `gorm:"size:64;index:idx_collection_parent"`
	Translations   []CollectionTranslationPO           `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE"`
	Channels       []CollectionChannelPO               `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 表名
func (CollectionPO) TableName() string {
	return "collections"
}

// CollectionTranslationPO 集合翻译
type CollectionTranslationPO struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	CollectionID string `gorm:"size:64;not null;index:idx_translation_collection"`
	LanguageCode string `gorm:"size:16;not null"`
	Name         string `gorm:"size:255;not null"`
	Slug         string `gorm:"size:255;not null;index:idx_translation_slug"`
	Description  string `gorm:"type:text"`
}

// TableName 表名
func (CollectionTranslationPO) TableName() string {
	return "collection_translations"
}

// CollectionChannelPO 集合-渠道关联
type CollectionChannelPO struct {
	CollectionID string `gorm:"primaryKey;size:64"`
	ChannelID    string `gorm:"primaryKey;size:64;index:idx_collection_channel"`
}

// TableName 表名
func (CollectionChannelPO) TableName() string {
	return "collection_channels"
}

// CollectionVariantPO 集合成员 (集合-规格多对多)
type CollectionVariantPO struct {
	CollectionID     string `gorm:"primaryKey;size:64"`
	ProductVariantID string `gorm:"primaryKey;size:64;index:idx_membership_variant"`
}

// TableName 表名
func (CollectionVariantPO) TableName() string {
	return "collection_product_variants"
}

// ChannelPO 渠道
type ChannelPO struct {
	ID                  string `gorm:"primaryKey;size:64"`
	Code                string `gorm:"size:64;not null;uniqueIndex"`
	Token               string `gorm:"size:128;not null;uniqueIndex"`
	DefaultLanguageCode string `gorm:"size:16;not null"`
	IsDefault           bool   `gorm:"not null"`
}

// TableName 表名
func (ChannelPO) TableName() string {
	return "channels"
}

// ProductVariantPO 商品规格 (目录侧维护，本服务只读)
type ProductVariantPO struct {
	ID        string `gorm:"primaryKey;size:64"`
	ProductID string `gorm:"size:64;not null;index:idx_variant_product"`
	Name      string `gorm:"size:255"`
	SKU       string `gorm:"size:128"`
	Price     int64
	DeletedAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 表名
func (ProductVariantPO) TableName() string {
	return filters.VariantTable
}

// VariantFacetValuePO 规格 facet value
type VariantFacetValuePO struct {
	ProductVariantID string `gorm:"primaryKey;size:64"`
	FacetValueID     string `gorm:"primaryKey;size:64;index"`
}

// TableName 表名
func (VariantFacetValuePO) TableName() string {
	return filters.VariantFacetValueTable
}

// ProductFacetValuePO 商品 facet value
type ProductFacetValuePO struct {
	ProductID    string `gorm:"primaryKey;size:64"`
	FacetValueID string `gorm:"primaryKey;size:64;index"`
}

// TableName 表名
func (ProductFacetValuePO) TableName() string {
	return filters.ProductFacetValueTable
}

func toCollectionPO(c *domain.Collection) *CollectionPO {
	po := &CollectionPO{
		ID:             c.ID,
		IsRoot:         c.IsRoot,
		IsPrivate:      c.IsPrivate,
		Position:       c.Position,
		InheritFilters: c.InheritFilters,
		Filters:        datatypes.NewJSONType(nonNilFilters(c.Filters)),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.ParentID != "" {
		parentID := c.ParentID
		po.ParentID = &parentID
	}
	for _, t := range c.Translations {
		po.Translations = append(po.Translations, CollectionTranslationPO{
			CollectionID: c.ID,
			LanguageCode: t.LanguageCode,
			Name:         t.Name,
			Slug:         t.Slug,
			Description:  t.Description,
		})
	}
	for _, channelID := range c.ChannelIDs {
		po.Channels = append(po.Channels, CollectionChannelPO{CollectionID: c.ID, ChannelID: channelID})
	}
	return po
}

func (po *CollectionPO) toDomain() *domain.Collection {
	c := &domain.Collection{
		ID:             po.ID,
		IsRoot:         po.IsRoot,
		IsPrivate:      po.IsPrivate,
		Position:       po.Position,
		InheritFilters: po.InheritFilters,
		Filters:        po.Filters.Data(),
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
	if po.ParentID != nil {
		c.ParentID = *po.ParentID
	}
	for _, t := range po.Translations {
		c.Translations = append(c.Translations, domain.CollectionTranslation{
			LanguageCode: t.LanguageCode,
			Name:         t.Name,
			Slug:         t.Slug,
			Description:  t.Description,
		})
	}
	for _, ch := range po.Channels {
		c.ChannelIDs = append(c.ChannelIDs, ch.ChannelID)
	}
	return c
}

func (po *ChannelPO) toDomain() *domain.Channel {
	return &domain.Channel{
		ID:                  po.ID,
		Code:                po.Code,
		Token:               po.Token,
		DefaultLanguageCode: po.DefaultLanguageCode,
		IsDefault:           po.IsDefault,
	}
}

func (po *ProductVariantPO) toDomain() *domain.ProductVariant {
	return &domain.ProductVariant{
		ID:        po.ID,
		ProductID: po.ProductID,
		Name:      po.Name,
		SKU:       po.SKU,
		Price:     po.Price,
	}
}

func nonNilFilters(fs []domain.Filter) []domain.Filter {
	if fs == nil {
		return []domain.Filter{}
	}
	return fs
}
