package domain

import "time"

// RootCollectionName 根集合的保留名称
const RootCollectionName = "__root_collection__"

// Collection 集合领域模型
type Collection struct {
	ID             string
	IsRoot         bool
	IsPrivate      bool
	Position       int
	InheritFilters bool
	Filters        []Filter
	ParentID       string
	Translations   []CollectionTranslation
	ChannelIDs     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CollectionTranslation 集合的多语言字段
type CollectionTranslation struct {
	LanguageCode string
	Name         string
	Slug         string
	Description  string
}

// Filter 集合过滤器 (code + 参数)
type Filter struct {
	Code string      `json:"code"`
	Args []FilterArg `json:"args"`
}

// FilterArg 过滤器参数，值统一以字符串保存
type FilterArg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FilterInput 未经校验的过滤器输入
type FilterInput struct {
	Code      string      `json:"code"`
	Arguments []FilterArg `json:"arguments"`
}

// HasParent 是否有父集合
func (c *Collection) HasParent() bool {
	return c.ParentID != ""
}

// Translate 按语言返回翻译，找不到时依次回退到默认语言和第一条
func (c *Collection) Translate(languageCode, defaultLanguageCode string) CollectionTranslation {
	var fallback *CollectionTranslation
	for i := range c.Translations {
		t := &c.Translations[i]
		if t.LanguageCode == languageCode {
			return *t
		}
		if t.LanguageCode == defaultLanguageCode && fallback == nil {
			fallback = t
		}
	}
	if fallback != nil {
		return *fallback
	}
	if len(c.Translations) > 0 {
		return c.Translations[0]
	}
	return CollectionTranslation{LanguageCode: languageCode}
}

// InChannel 是否属于指定渠道
func (c *Collection) InChannel(channelID string) bool {
	for _, id := range c.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// CollectionListOptions 列表查询选项
type CollectionListOptions struct {
	TopLevelOnly bool
	Skip         int
	Take         int
}

// ProductVariant 商品规格 (目录只读视图)
type ProductVariant struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	Price     int64
}

// MembershipDelta 成员差异
type MembershipDelta struct {
	ToAdd    []string
	ToRemove []string
}

// Empty 差异是否为空
func (d *MembershipDelta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}
