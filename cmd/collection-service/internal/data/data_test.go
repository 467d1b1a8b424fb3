package data

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/database"
)

const testChannelID = "ch-default"

func newTestData(t *testing.T) *Data {
	t.Helper()
	db, err := NewDB(&database.Config{Driver: "sqlite", LogLevel: "silent"}, log.DefaultLogger)
	require.NoError(t, err)

	d, cleanup, err := NewData(db, log.DefaultLogger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	require.NoError(t, db.Create(&ChannelPO{
		ID:                  testChannelID,
		Code:                "default",
		Token:               "default-token",
		DefaultLanguageCode: "en",
		IsDefault:           true,
	}).Error)
	return d
}

func seedVariants(t *testing.T, d *Data, productID string, n int, prefix string) []string {
	t.Helper()
	rows := make([]ProductVariantPO, 0, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s%05d", prefix, i)
		ids = append(ids, id)
		rows = append(rows, ProductVariantPO{ID: id, ProductID: productID, Name: "Variant " + id, Price: int64(i)})
	}
	require.NoError(t, d.db.CreateInBatches(&rows, 1000).Error)
	return ids
}

func newCollection(id, parentID string, position int, name string) *domain.Collection {
	return &domain.Collection{
		ID:             id,
		ParentID:       parentID,
		Position:       position,
		InheritFilters: true,
		Translations:   []domain.CollectionTranslation{{LanguageCode: "en", Name: name, Slug: name}},
		ChannelIDs:     []string{testChannelID},
	}
}

func createTree(t *testing.T, repo domain.CollectionRepository) {
	t.Helper()
	ctx := context.Background()
	root := newCollection("root", "", 0, domain.RootCollectionName)
	root.IsRoot = true
	require.NoError(t, repo.CreateRoot(ctx, root))
	require.NoError(t, repo.Create(ctx, newCollection("a", "root", 1, "a")))
	require.NoError(t, repo.Create(ctx, newCollection("b", "root", 2, "b")))
	require.NoError(t, repo.Create(ctx, newCollection("a1", "a", 1, "a1")))
}
