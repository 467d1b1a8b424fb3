package domain

// ApplyFiltersQueue 集合过滤器重算队列名
const ApplyFiltersQueue = "apply-collection-filters"

// JobContext 序列化到任务中的请求上下文
type JobContext struct {
	ChannelToken string `json:"channelToken"`
	LanguageCode string `json:"languageCode"`
}

// ApplyFiltersJobData 重算任务载荷，CollectionIDs 为空表示全部集合
type ApplyFiltersJobData struct {
	Ctx                        JobContext `json:"ctx"`
	CollectionIDs              []string   `json:"collectionIds"`
	ApplyToChangedVariantsOnly bool       `json:"applyToChangedVariantsOnly"`
}

// ApplyFiltersJobResult 重算任务结果
type ApplyFiltersJobResult struct {
	ProcessedCollections int `json:"processedCollections"`
}

// TriggerOptions 手动触发选项
type TriggerOptions struct {
	CollectionIDs              []string
	ApplyToChangedVariantsOnly *bool
}
