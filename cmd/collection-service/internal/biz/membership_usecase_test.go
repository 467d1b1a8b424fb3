package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMembershipUsecase_ApplyFailureReportsDeltaOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.seedVariants(t, "p1", 3)
	c := f.create(t, "", "A", true, productIDs("p1"))
	f.runJobs(t)
	require.NoError(t, f.db.Exec("DELETE FROM collection_product_variants WHERE product_variant_id = ?", ids[2]).Error)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:reject_members", func(db *gorm.DB) {
		if db.Statement.Table == "collection_product_variants" {
			db.AddError(errors.New("insert rejected"))
		}
	}))

	stored, err := f.collections.GetByID(ctx, c.ID)
	require.NoError(t, err)
	for _, changedOnly := range []bool{false, true} {
		result, err := f.membership.Apply(ctx, stored, changedOnly)
		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.Equal(t, []string{ids[2]}, result.Delta.ToAdd)
		assert.Equal(t, []string{ids[2]}, result.Affected, "changedOnly=%v", changedOnly)
	}

	require.NoError(t, f.db.Callback().Create().Remove("test:reject_members"))
	result, err := f.membership.Apply(ctx, stored, false)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.ElementsMatch(t, ids, result.Affected)
}
