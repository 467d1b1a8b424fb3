package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"gorm.io/gorm"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/database"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewData,
	NewTransaction,
	NewCollectionRepo,
	NewMembershipRepo,
	NewChannelRepo,
)

type txKey struct{}

// Data 数据访问层
type Data struct {
	db *gorm.DB
}

// NewData 创建Data实例
func NewData(db *gorm.DB, logger log.Logger) (*Data, func(), error) {
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
	return &Data{db: db}, cleanup, nil
}

// NewDB 打开数据库并迁移表结构
func NewDB(c *database.Config, logger log.Logger) (*gorm.DB, error) {
	db, err := database.NewDB(c, logger)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate 迁移本服务的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ChannelPO{},
		&CollectionPO{},
		&CollectionTranslationPO{},
		&CollectionChannelPO{},
		&CollectionVariantPO{},
		&ProductVariantPO{},
		&VariantFacetValuePO{},
		&ProductFacetValuePO{},
	)
}

// DB 返回上下文中的事务，没有事务时返回基础连接
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return d.db.WithContext(ctx)
}

// Base 基础连接，忽略上下文中的事务
func (d *Data) Base(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

type transaction struct {
	data *Data
}

// NewTransaction 创建事务执行器
func NewTransaction(data *Data) domain.Transaction {
	return &transaction{data: data}
}

// InTx 在事务中执行 fn，已存在事务时复用
func (t *transaction) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
