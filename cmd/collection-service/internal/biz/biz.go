package biz

import (
	"time"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewFilterResolver,
	NewRootCache,
	NewMembershipUsecase,
	NewApplyFiltersScheduler,
	NewChannelResolver,
	NewCollectionUsecase,
)

// CatalogOptions 集合重算相关配置
type CatalogOptions struct {
	ApplyOnProductUpdates bool          // 商品变更时是否自动重算全部集合
	DebounceWindow        time.Duration // 商品事件合并窗口
	MaxDebounceWait       time.Duration // 持续有事件时的最长等待
	ChunkSize             int           // 成员写入分块大小
	NotifyChunkSize       int           // 单个成员变更事件携带的规格ID上限
	DeleteChunkSize       int           // 删除集合时解除关联的分块大小
	FetchRetries          int           // 任务中读取集合的尝试次数
	FetchRetryDelay       time.Duration
	MaxTreeDepth          int // 祖先/后代遍历深度上限
	DefaultLanguageCode   string
}

// DefaultCatalogOptions 默认配置
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		ApplyOnProductUpdates: true,
		DebounceWindow:        50 * time.Millisecond,
		MaxDebounceWait:       time.Second,
		ChunkSize:             5000,
		NotifyChunkSize:       50000,
		DeleteChunkSize:       500,
		FetchRetries:          5,
		FetchRetryDelay:       50 * time.Millisecond,
		MaxTreeDepth:          256,
		DefaultLanguageCode:   "en",
	}
}

// withDefaults 未设置的字段回落到默认值
func (o CatalogOptions) withDefaults() CatalogOptions {
	d := DefaultCatalogOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.MaxDebounceWait < o.DebounceWindow {
		o.MaxDebounceWait = o.DebounceWindow * 20
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.NotifyChunkSize <= 0 {
		o.NotifyChunkSize = d.NotifyChunkSize
	}
	if o.DeleteChunkSize <= 0 {
		o.DeleteChunkSize = d.DeleteChunkSize
	}
	if o.FetchRetries <= 0 {
		o.FetchRetries = d.FetchRetries
	}
	if o.FetchRetryDelay <= 0 {
		o.FetchRetryDelay = d.FetchRetryDelay
	}
	if o.MaxTreeDepth <= 0 {
		o.MaxTreeDepth = d.MaxTreeDepth
	}
	if o.DefaultLanguageCode == "" {
		o.DefaultLanguageCode = d.DefaultLanguageCode
	}
	return o
}

func chunkStrings(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{ids}
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
