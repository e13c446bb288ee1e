package service

import "gorm.io/gorm"

// PageSize is the number of results per list page.
const PageSize = 10

// Page is one page of a list result. Next and Previous are page numbers.
type Page[T any] struct {
	Count    int64 `json:"count"`
	Next     *int  `json:"next"`
	Previous *int  `json:"previous"`
	Results  []T   `json:"results"`
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// paginate counts query and loads the requested page into a Page. A page
// past the end of a non-empty result is ErrNotFound.
func paginate[T any](query *gorm.DB, page int, preloads ...string) (*Page[T], error) {
	page = normalizePage(page)

	var count int64
	if err := query.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if page > 1 && int64((page-1)*PageSize) >= count {
		return nil, ErrNotFound
	}

	find := query.Session(&gorm.Session{})
	for _, p := range preloads {
		find = find.Preload(p)
	}
	results := make([]T, 0, PageSize)
	if err := find.Offset((page - 1) * PageSize).Limit(PageSize).Find(&results).Error; err != nil {
		return nil, err
	}

	p := &Page[T]{Count: count, Results: results}
	if int64(page*PageSize) < count {
		next := page + 1
		p.Next = &next
	}
	if page > 1 {
		prev := page - 1
		p.Previous = &prev
	}
	return p, nil
}

// likeClause matches column case-insensitively against a substring pattern.
func likeClause(column string) string {
	return "LOWER(" + column + ") LIKE LOWER(?) ESCAPE '\\'"
}

// likePattern builds a case-insensitive substring pattern with LIKE wildcards escaped.
func likePattern(s string) string {
	r := make([]rune, 0, len(s)+2)
	r = append(r, '%')
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(append(r, '%'))
}
