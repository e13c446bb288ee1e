package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/taskhub-dev/taskhub/internal/db"
	"github.com/taskhub-dev/taskhub/internal/models"
)

func decodeCategoryPage(t *testing.T, data []byte) Page[models.Category] {
	t.Helper()
	var page Page[models.Category]
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	return page
}

func TestCategoryList_CachesDefaultPage(t *testing.T) {
	database := testSetup(t)
	svc, c := newCategoryService(database)
	createCategory(t, database, "Work")
	createCategory(t, database, "Home")

	ctx, cold := db.WithQueryCounter(context.Background())
	first, err := svc.List(ctx, CategoryFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if cold.Count() == 0 {
		t.Fatal("expected the cold call to query the database")
	}

	stored, ok, _ := c.Get(context.Background(), "all_categories")
	if !ok {
		t.Fatal("expected page stored under all_categories")
	}
	if !bytes.Equal(stored, first) {
		t.Error("stored bytes differ from the response")
	}

	ctx, warm := db.WithQueryCounter(context.Background())
	second, err := svc.List(ctx, CategoryFilter{})
	if err != nil {
		t.Fatalf("second List: %v", err)
	}
	if warm.Count() != 0 {
		t.Errorf("expected no queries on a cache hit, got %d", warm.Count())
	}
	if !bytes.Equal(first, second) {
		t.Error("cache hit returned different bytes")
	}

	page := decodeCategoryPage(t, first)
	if page.Count != 2 || page.Results[0].Name != "Work" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestCategoryList_MutationsInvalidate(t *testing.T) {
	database := testSetup(t)
	svc, c := newCategoryService(database)
	ctx := context.Background()

	warm := func() {
		t.Helper()
		if _, err := svc.List(ctx, CategoryFilter{}); err != nil {
			t.Fatalf("List: %v", err)
		}
		if _, err := svc.List(ctx, CategoryFilter{Name: "o"}); err != nil {
			t.Fatalf("filtered List: %v", err)
		}
	}
	assertCold := func(step string) {
		t.Helper()
		for _, key := range []string{"all_categories", CategoryFilter{Name: "o"}.CacheKey()} {
			if _, ok, _ := c.Get(ctx, key); ok {
				t.Errorf("%s: %s still cached", step, key)
			}
		}
	}

	warm()
	cat, err := svc.Create(ctx, CategoryInput{Name: ptr("Work")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertCold("create")

	warm()
	if _, err := svc.Update(ctx, cat.ID, CategoryInput{Name: ptr("Office")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	assertCold("update")

	warm()
	if _, err := svc.Patch(ctx, cat.ID, CategoryInput{Name: ptr("Home office")}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	assertCold("patch")

	warm()
	if err := svc.Delete(ctx, cat.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertCold("delete")

	data, err := svc.List(ctx, CategoryFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page := decodeCategoryPage(t, data); page.Count != 0 {
		t.Errorf("expected empty list after delete, got %+v", page)
	}
}

func TestCategoryList_FilterAndPaging(t *testing.T) {
	database := testSetup(t)
	svc, _ := newCategoryService(database)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		createCategory(t, database, fmt.Sprintf("Project %02d", i))
	}
	createCategory(t, database, "Groceries")

	data, err := svc.List(ctx, CategoryFilter{Name: "PROJECT"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	page := decodeCategoryPage(t, data)
	if page.Count != 12 || len(page.Results) != PageSize || page.Next == nil || *page.Next != 2 {
		t.Errorf("unexpected first page: count=%d results=%d next=%v", page.Count, len(page.Results), page.Next)
	}

	data, err = svc.List(ctx, CategoryFilter{Name: "project", Page: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	page = decodeCategoryPage(t, data)
	if len(page.Results) != 2 || page.Previous == nil || *page.Previous != 1 || page.Next != nil {
		t.Errorf("unexpected second page: %+v", page)
	}

	// LIKE wildcards in the filter are matched literally
	data, _ = svc.List(ctx, CategoryFilter{Name: "%"})
	if page := decodeCategoryPage(t, data); page.Count != 0 {
		t.Errorf("expected %% to match nothing, got %d", page.Count)
	}

	if _, err := svc.List(ctx, CategoryFilter{Page: 5}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a page past the end, got %v", err)
	}
}

func TestCategoryList_ConcurrentMissesShareResult(t *testing.T) {
	database := testSetup(t)
	svc, _ := newCategoryService(database)
	createCategory(t, database, "Work")

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.List(context.Background(), CategoryFilter{})
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("List %d: %v", i, errs[i])
		}
		if !bytes.Equal(results[i], results[0]) {
			t.Errorf("result %d differs", i)
		}
	}
}

func TestCategoryValidation(t *testing.T) {
	database := testSetup(t)
	svc, _ := newCategoryService(database)
	ctx := context.Background()
	createCategory(t, database, "Work")

	cases := []struct {
		name string
		in   CategoryInput
	}{
		{"missing", CategoryInput{}},
		{"blank", CategoryInput{Name: ptr("   ")}},
		{"duplicate", CategoryInput{Name: ptr("Work")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *ValidationError
			if _, err := svc.Create(ctx, tc.in); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Fields["name"]) == 0 {
				t.Errorf("expected a name field error, got %+v", verr.Fields)
			}
		})
	}

	// Case differs, so the name is distinct
	if _, err := svc.Create(ctx, CategoryInput{Name: ptr("work")}); err != nil {
		t.Errorf("expected case-sensitive uniqueness, got %v", err)
	}
}

func TestCategoryDelete_RestrictedWhileReferenced(t *testing.T) {
	database := testSetup(t)
	svc, _ := newCategoryService(database)
	ctx := context.Background()

	owner := createEmployer(t, database, "boss@example.com")
	used := createCategory(t, database, "Used")
	unused := createCategory(t, database, "Unused")
	task := models.Task{Title: "Write report", Priority: models.PriorityMedium, CategoryID: used.ID, UserID: owner.ID}
	if err := database.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	var conflict *ConflictError
	if err := svc.Delete(ctx, used.ID); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if _, err := svc.Get(ctx, used.ID); err != nil {
		t.Errorf("referenced category should remain: %v", err)
	}

	if err := svc.Delete(ctx, unused.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, unused.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := svc.Delete(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing category, got %v", err)
	}
}
