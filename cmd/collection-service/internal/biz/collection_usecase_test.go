package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/cmd/collection-service/internal/data"
	"catalog/cmd/collection-service/internal/domain"
)

func TestCollectionUsecase_CreateAppliesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shoes := f.seedVariants(t, "p1", 3)
	f.seedVariants(t, "p2", 2)

	c := f.create(t, "", "Summer Shoes", true, productIDs("p1"))
	root, err := f.roots.Get(ctx, f.rc)
	require.NoError(t, err)
	assert.Equal(t, root.ID, c.ParentID)
	assert.Equal(t, 1, c.Position)
	assert.Equal(t, "summer-shoes", c.Translations[0].Slug)
	assert.EqualValues(t, 1, f.store.enqueued.Load())

	results := f.runJobs(t)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ProcessedCollections)

	ids, err := f.uc.GetCollectionProductVariantIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, shoes, ids)

	events := f.recorded()
	require.Len(t, events, 2)
	created, ok := events[0].(domain.CollectionEvent)
	require.True(t, ok)
	assert.Equal(t, domain.CollectionCreated, created.Action)
	modified, ok := events[1].(domain.CollectionModificationEvent)
	require.True(t, ok)
	assert.Equal(t, shoes, modified.ProductVariantIDs)

	byProduct, err := f.uc.GetCollectionsByProductID(ctx, f.rc, "p1", false)
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, c.ID, byProduct[0].ID)
}

func TestCollectionUsecase_ReevaluationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVariants(t, "p1", 4)
	c := f.create(t, "", "Shoes", true, productIDs("p1"))
	f.runJobs(t)

	stored, err := f.collections.GetByID(ctx, c.ID)
	require.NoError(t, err)
	delta, err := f.membership.ComputeDelta(ctx, stored)
	require.NoError(t, err)
	assert.Empty(t, delta.ToAdd)
	assert.Empty(t, delta.ToRemove)

	_, err = f.scheduler.TriggerApplyFiltersJob(ctx, f.rc, domain.TriggerOptions{CollectionIDs: []string{c.ID}})
	require.NoError(t, err)
	f.resetEvents()
	f.runJobs(t)
	// 差异为空时 changedOnly 任务没有需要通知的规格
	assert.Empty(t, f.recorded())
}

func TestCollectionUsecase_EmptyFilterChainEmptiesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.seedVariants(t, "p1", 3)
	c := f.create(t, "", "Shoes", true, productIDs("p1"))
	f.runJobs(t)

	none := []domain.FilterInput{}
	_, err := f.uc.Update(ctx, f.rc, UpdateCollectionInput{ID: c.ID, Filters: &none})
	require.NoError(t, err)
	f.resetEvents()
	f.runJobs(t)

	members, err := f.uc.GetCollectionProductVariantIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// 过滤器变化后通知全部受影响规格，包括被移除的
	events := f.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, ids, events[0].(domain.CollectionModificationEvent).ProductVariantIDs)
}

func TestCollectionUsecase_UpdateWithoutFilterChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.seedVariants(t, "p1", 2)
	c := f.create(t, "", "Shoes", true, productIDs("p1"))
	f.runJobs(t)
	f.resetEvents()
	before := f.store.enqueued.Load()

	updated, err := f.uc.Update(ctx, f.rc, UpdateCollectionInput{
		ID:           c.ID,
		Translations: []domain.CollectionTranslation{{LanguageCode: "en", Name: "Boots"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Boots", updated.Translations[0].Name)
	assert.Equal(t, "boots", updated.Translations[0].Slug)
	assert.Equal(t, before, f.store.enqueued.Load())

	events := f.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, ids, events[0].(domain.CollectionModificationEvent).ProductVariantIDs)
	assert.Equal(t, domain.CollectionUpdated, events[1].(domain.CollectionEvent).Action)
}

func TestCollectionUsecase_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Create(ctx, f.rc, CreateCollectionInput{
		Translations: []domain.CollectionTranslation{{LanguageCode: "en", Name: "  "}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCollectionName)

	_, err = f.uc.Create(ctx, f.rc, CreateCollectionInput{
		Filters:      []domain.FilterInput{{Code: "no-such-filter"}},
		Translations: []domain.CollectionTranslation{{LanguageCode: "en", Name: "Shoes"}},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownFilter)

	_, err = f.uc.Create(ctx, f.rc, CreateCollectionInput{
		ParentID:     "missing",
		Translations: []domain.CollectionTranslation{{LanguageCode: "en", Name: "Shoes"}},
	})
	assert.ErrorIs(t, err, domain.ErrParentCollectionNotFound)
	assert.Zero(t, f.store.enqueued.Load())
}

func TestCollectionUsecase_UniqueSlugs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "", "Summer Sale", true)
	second := f.create(t, "", "Summer Sale", true)
	assert.Equal(t, "summer-sale", first.Translations[0].Slug)
	assert.Equal(t, "summer-sale-1", second.Translations[0].Slug)

	found, err := f.uc.FindOneBySlug(ctx, f.rc, "summer-sale-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	_, err = f.uc.FindOneBySlug(ctx, f.rc, "winter-sale")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestCollectionUsecase_MoveRejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVariants(t, "p1", 2)
	a := f.create(t, "", "A", true, productIDs("p1"))
	b := f.create(t, a.ID, "B", true)
	c := f.create(t, b.ID, "C", true)
	f.runJobs(t)
	enqueued := f.store.enqueued.Load()
	members, err := f.uc.GetCollectionProductVariantIDs(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: a.ID, ParentID: c.ID})
	assert.ErrorIs(t, err, domain.ErrCannotMoveIntoSelf)
	_, err = f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: a.ID, ParentID: a.ID})
	assert.ErrorIs(t, err, domain.ErrCannotMoveIntoSelf)

	stored, err := f.collections.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ParentID, stored.ParentID)
	assert.Equal(t, a.Position, stored.Position)
	assert.Equal(t, enqueued, f.store.enqueued.Load())
	after, err := f.uc.GetCollectionProductVariantIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, members, after)

	root, err := f.roots.Get(ctx, f.rc)
	require.NoError(t, err)
	_, err = f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: root.ID, ParentID: a.ID})
	assert.ErrorIs(t, err, domain.ErrCannotMoveRoot)
}

func TestCollectionUsecase_MoveReordersSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "", "A", true)
	b := f.create(t, "", "B", true)
	c := f.create(t, "", "C", true)
	child := f.create(t, c.ID, "C1", true)
	f.runJobs(t)
	root, err := f.roots.Get(ctx, f.rc)
	require.NoError(t, err)

	_, err = f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: c.ID, ParentID: root.ID, Index: 0})
	require.NoError(t, err)
	children, err := f.uc.GetChildren(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, collectionIDs(children))

	// 移动后重算目标及其后代
	results := f.runJobs(t)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].ProcessedCollections)

	moved, err := f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: b.ID, ParentID: a.ID, Index: 99})
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ParentID)
	assert.Equal(t, 1, moved.Position)

	_, err = f.uc.Move(ctx, f.rc, MoveCollectionInput{CollectionID: child.ID, ParentID: "missing"})
	assert.ErrorIs(t, err, domain.ErrParentCollectionNotFound)
}

func TestMoveToIndex(t *testing.T) {
	x := &domain.Collection{ID: "x"}
	a := &domain.Collection{ID: "a"}
	b := &domain.Collection{ID: "b"}

	got := moveToIndex(1, x, []*domain.Collection{a, x, b})
	assert.Equal(t, []string{"a", "x", "b"}, collectionIDs(got))
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Position, got[1].Position, got[2].Position})

	got = moveToIndex(-3, x, []*domain.Collection{a, b})
	assert.Equal(t, []string{"x", "a", "b"}, collectionIDs(got))

	got = moveToIndex(10, x, []*domain.Collection{a, b})
	assert.Equal(t, []string{"a", "b", "x"}, collectionIDs(got))
	assert.Equal(t, 3, x.Position)
}

func TestCollectionUsecase_DeleteCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVariants(t, "p1", 3)
	a := f.create(t, "", "A", true, productIDs("p1"))
	b := f.create(t, a.ID, "B", true)
	c := f.create(t, b.ID, "C", true)
	sibling := f.create(t, "", "Other", true, productIDs("p1"))
	f.runJobs(t)

	for _, id := range []string{a.ID, b.ID, c.ID} {
		members, err := f.uc.GetCollectionProductVariantIDs(ctx, id)
		require.NoError(t, err)
		require.Len(t, members, 3)
	}
	f.resetEvents()

	require.NoError(t, f.uc.Delete(ctx, f.rc, a.ID))

	events := f.recorded()
	require.Len(t, events, 4)
	var order []string
	for _, e := range events[:3] {
		m, ok := e.(domain.CollectionModificationEvent)
		require.True(t, ok)
		assert.Len(t, m.ProductVariantIDs, 3)
		order = append(order, m.Collection.ID)
	}
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, order)
	deleted, ok := events[3].(domain.CollectionEvent)
	require.True(t, ok)
	assert.Equal(t, domain.CollectionDeleted, deleted.Action)
	assert.Equal(t, a.ID, deleted.Input)

	var links int64
	require.NoError(t, f.db.Model(&data.CollectionVariantPO{}).
		Where("collection_id IN ?", []string{a.ID, b.ID, c.ID}).Count(&links).Error)
	assert.Zero(t, links)
	for _, id := range []string{a.ID, b.ID, c.ID} {
		_, err := f.uc.FindOne(ctx, f.rc, id)
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	}

	remaining, err := f.uc.GetCollectionProductVariantIDs(ctx, sibling.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestCollectionUsecase_DeleteRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root, err := f.roots.Get(ctx, f.rc)
	require.NoError(t, err)
	assert.ErrorIs(t, f.uc.Delete(ctx, f.rc, root.ID), domain.ErrCannotDeleteRoot)
}

func TestCollectionUsecase_Channels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&data.ChannelPO{
		ID: "ch-eu", Code: "eu", Token: "eu-token", DefaultLanguageCode: "de",
	}).Error)
	f.seedVariants(t, "p1", 2)
	c := f.create(t, "", "Shoes", true, productIDs("p1"))
	f.runJobs(t)
	enqueued := f.store.enqueued.Load()

	assigned, err := f.uc.AssignToChannel(ctx, f.rc, []string{c.ID, "missing"}, "ch-eu")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.ElementsMatch(t, []string{"ch-default", "ch-eu"}, assigned[0].ChannelIDs)
	assert.Equal(t, enqueued+1, f.store.enqueued.Load())

	_, err = f.uc.AssignToChannel(ctx, f.rc, []string{c.ID}, "ch-missing")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	_, err = f.uc.RemoveFromChannel(ctx, f.rc, []string{c.ID}, "ch-default")
	assert.ErrorIs(t, err, domain.ErrDefaultChannelRemoval)

	f.resetEvents()
	removed, err := f.uc.RemoveFromChannel(ctx, f.rc, []string{c.ID}, "ch-eu")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, []string{"ch-default"}, removed[0].ChannelIDs)
	events := f.recorded()
	require.Len(t, events, 1)
	assert.Len(t, events[0].(domain.CollectionModificationEvent).ProductVariantIDs, 2)
}

func TestCollectionUsecase_TreeQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "", "A", true)
	b := f.create(t, a.ID, "B", true)
	c := f.create(t, b.ID, "C", true)
	b2 := f.create(t, a.ID, "B2", true)

	crumbs, err := f.uc.GetBreadcrumbs(ctx, f.rc, c.ID)
	require.NoError(t, err)
	var names []string
	for _, crumb := range crumbs {
		names = append(names, crumb.Name)
	}
	assert.Equal(t, []string{domain.RootCollectionName, "A", "B", "C"}, names)

	ancestors, err := f.uc.GetAncestors(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, collectionIDs(ancestors))

	descendants, err := f.uc.GetDescendants(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, c.ID, b2.ID}, collectionIDs(descendants))

	children, err := f.uc.GetChildren(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, b2.ID}, collectionIDs(children))

	parent, err := f.uc.GetParent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, parent.ID)

	all, total, err := f.uc.FindAll(ctx, f.rc, domain.CollectionListOptions{TopLevelOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{a.ID}, collectionIDs(all))
}

func TestCollectionUsecase_PreviewInheritsParentFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVariants(t, "p1", 3)
	f.seedVariants(t, "p2", 3)
	parent := f.create(t, "", "P1 only", true, productIDs("p1"))

	variants, total, err := f.uc.PreviewCollectionVariants(ctx, f.rc, PreviewInput{
		ParentID:       parent.ID,
		InheritFilters: true,
		Filters:        []domain.FilterInput{priceRange(0, 1)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, v := range variants {
		assert.Equal(t, "p1", v.ProductID)
	}

	_, total, err = f.uc.PreviewCollectionVariants(ctx, f.rc, PreviewInput{
		ParentID: parent.ID,
		Filters:  []domain.FilterInput{priceRange(0, 1)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)

	assert.NotEmpty(t, f.uc.GetAvailableFilters())
}

func TestCollectionUsecase_SlugFromName(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "summer-sale-2024", f.create(t, "", "  Summer Sale: 2024! ", true).Translations[0].Slug)
	assert.Equal(t, "cafe-creme", f.create(t, "", "Café Crème", true).Translations[0].Slug)
	assert.Equal(t, "cafe-creme-1", f.create(t, "", "Cafe creme", true).Translations[0].Slug)
}
