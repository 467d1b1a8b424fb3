package service

import (
	"encoding/json"
	"time"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/jobqueue"
)

// TranslationDTO 集合翻译
type TranslationDTO struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	Slug         string `json:"slug,omitempty"`
	Description  string `json:"description,omitempty"`
}

// CollectionReply 集合
type CollectionReply struct {
	ID             string           `json:"id"`
	ParentID       string           `json:"parentId,omitempty"`
	IsRoot         bool             `json:"isRoot"`
	IsPrivate      bool             `json:"isPrivate"`
	Position       int              `json:"position"`
	InheritFilters bool             `json:"inheritFilters"`
	Filters        []domain.Filter  `json:"filters"`
	LanguageCode   string           `json:"languageCode"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug"`
	Description    string           `json:"description"`
	Translations   []TranslationDTO `json:"translations"`
	ChannelIDs     []string         `json:"channelIds"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ListCollectionsRequest 列表查询
type ListCollectionsRequest struct {
	TopLevelOnly bool `json:"topLevelOnly"`
	Skip         int  `json:"skip"`
	Take         int  `json:"take"`
}

// CollectionListReply 集合列表
type CollectionListReply struct {
	Items      []*CollectionReply `json:"items"`
	TotalItems int64              `json:"totalItems"`
}

// CollectionIDRequest 路径中的集合ID
type CollectionIDRequest struct {
	ID string `json:"id"`
}

// DescendantsRequest 后代查询
type DescendantsRequest struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
}

// SlugRequest 按 slug 查询
type SlugRequest struct {
	Slug string `json:"slug"`
}

// ProductCollectionsRequest 商品所属集合
type ProductCollectionsRequest struct {
	ProductID  string `json:"productId"`
	PublicOnly bool   `json:"publicOnly"`
}

// CreateCollectionRequest 创建集合
type CreateCollectionRequest struct {
	ParentID       string               `json:"parentId"`
	IsPrivate      bool                 `json:"isPrivate"`
	InheritFilters *bool                `json:"inheritFilters"`
	Filters        []domain.FilterInput `json:"filters"`
	Translations   []TranslationDTO     `json:"translations"`
}

// UpdateCollectionRequest 更新集合
type UpdateCollectionRequest struct {
	ID             string                `json:"id"`
	IsPrivate      *bool                 `json:"isPrivate"`
	InheritFilters *bool                 `json:"inheritFilters"`
	Filters        *[]domain.FilterInput `json:"filters"`
	Translations   []TranslationDTO      `json:"translations"`
}

// MoveCollectionRequest 移动集合
type MoveCollectionRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
}

// DeletionReply 删除结果
type DeletionReply struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// BreadcrumbsReply 面包屑
type BreadcrumbsReply struct {
	Items []biz.Breadcrumb `json:"items"`
}

// VariantIDsReply 集合成员
type VariantIDsReply struct {
	ProductVariantIDs []string `json:"productVariantIds"`
}

// PreviewRequest 预览过滤器
type PreviewRequest struct {
	ParentID       string               `json:"parentId"`
	InheritFilters bool                 `json:"inheritFilters"`
	Filters        []domain.FilterInput `json:"filters"`
	Skip           int                  `json:"skip"`
	Take           int                  `json:"take"`
}

// VariantReply 商品规格
type VariantReply struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
}

// PreviewReply 预览结果
type PreviewReply struct {
	Items      []*VariantReply `json:"items"`
	TotalItems int64           `json:"totalItems"`
}

// TriggerRequest 手动触发重算
type TriggerRequest struct {
	CollectionIDs              []string `json:"collectionIds"`
	ApplyToChangedVariantsOnly *bool    `json:"applyToChangedVariantsOnly"`
}

// ToggleRequest 开关商品变更自动重算
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToggleReply 当前开关状态
type ToggleReply struct {
	Enabled bool `json:"enabled"`
}

// JobIDRequest 任务ID
type JobIDRequest struct {
	ID string `json:"id"`
}

// JobReply 任务
type JobReply struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	State     string          `json:"state"`
	Progress  int             `json:"progress"`
	Data      json.RawMessage `json:"data,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	SettledAt *time.Time      `json:"settledAt,omitempty"`
}

// ChannelCollectionsRequest 集合与渠道关联
type ChannelCollectionsRequest struct {
	ChannelID     string   `json:"id"`
	CollectionIDs []string `json:"collectionIds"`
}

func toTranslations(in []TranslationDTO) []domain.CollectionTranslation {
	if in == nil {
		return nil
	}
	out := make([]domain.CollectionTranslation, 0, len(in))
	for _, t := range in {
		out = append(out, domain.CollectionTranslation{
			LanguageCode: t.LanguageCode,
			Name:         t.Name,
			Slug:         t.Slug,
			Description:  t.Description,
		})
	}
	return out
}

func toCollectionReply(c *domain.Collection, rc domain.RequestContext) *CollectionReply {
	if c == nil {
		return nil
	}
	defaultLang := ""
	if rc.Channel != nil {
		defaultLang = rc.Channel.DefaultLanguageCode
	}
	t := c.Translate(rc.Language(), defaultLang)

	reply := &CollectionReply{
		ID:             c.ID,
		ParentID:       c.ParentID,
		IsRoot:         c.IsRoot,
		IsPrivate:      c.IsPrivate,
		Position:       c.Position,
		InheritFilters: c.InheritFilters,
		Filters:        c.Filters,
		LanguageCode:   t.LanguageCode,
		Name:           t.Name,
		Slug:           t.Slug,
		Description:    t.Description,
		Translations:   make([]TranslationDTO, 0, len(c.Translations)),
		ChannelIDs:     c.ChannelIDs,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if reply.Filters == nil {
		reply.Filters = []domain.Filter{}
	}
	for _, tr := range c.Translations {
		reply.Translations = append(reply.Translations, TranslationDTO(tr))
	}
	return reply
}

func toCollectionReplies(cs []*domain.Collection, rc domain.RequestContext) []*CollectionReply {
	out := make([]*CollectionReply, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCollectionReply(c, rc))
	}
	return out
}

func toJobReply(j *jobqueue.Job) *JobReply {
	return &JobReply{
		ID:        j.ID,
		Queue:     j.Queue,
		State:     string(j.State),
		Progress:  j.Progress,
		Data:      j.Data,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		StartedAt: j.StartedAt,
		SettledAt: j.SettledAt,
	}
}
