package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

// ErrInvalidQuery indicates the caller supplied list parameters that
// cannot be translated into a store query.
var ErrInvalidQuery = errors.New("invalid query parameters")

// FilterOp names a comparison operator in a translated filter.
type FilterOp string

// Supported filter operators. They arrive as bracket suffixes on query
// parameter keys (points[gte]=10, difficulty[in]=easy,medium) and are
// rewritten into store-native comparisons.
const (
	FilterOpEq  FilterOp = "eq"
	FilterOpGte FilterOp = "gte"
	FilterOpGt  FilterOp = "gt"
	FilterOpLte FilterOp = "lte"
	FilterOpLt  FilterOp = "lt"
	FilterOpIn  FilterOp = "in"
)

// TaskFilter is one translated filter predicate.
type TaskFilter struct {
	Field  string
	Op     FilterOp
	Values []string
}

// SortField is one translated sort key.
type SortField struct {
	Field string
	Desc  bool
}

// TaskListQuery is the store-level form of a task listing request.
type TaskListQuery struct {
	Filters []TaskFilter
	Sort    []SortField
	Fields  []string
	Page    int
	Limit   int
}

// Offset returns the number of rows the query window skips.
func (q TaskListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

const (
	taskListDefaultLimit = 25
	taskListMaxLimit     = 100
)

// Query parameter keys that control the result window rather than
// filter it.
var taskReservedParams = map[string]struct{}{
	"page":   {},
	"limit":  {},
	"sort":   {},
	"fields": {},
}

// Columns a caller may filter or sort by. Keys are the public names,
// values the column expressions, keeping arbitrary input away from SQL.
var taskFilterableColumns = map[string]string{
	"title":            "title",
	"difficulty":       "difficulty",
	"points":           "points",
	"submission_count": "submission_count",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

// Columns a caller may project with the fields parameter.
var taskSelectableColumns = map[string]string{
	"id":               "id",
	"title":            "title",
	"description":      "description",
	"difficulty":       "difficulty",
	"points":           "points",
	"dependencies":     "dependencies",
	"assets":           "assets",
	"test_cases":       "test_cases",
	"solution_notes":   "solution_notes",
	"submission_count": "submission_count",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

var filterOps = map[string]FilterOp{
	"gte": FilterOpGte,
	"gt":  FilterOpGt,
	"lte": FilterOpLte,
	"lt":  FilterOpLt,
	"in":  FilterOpIn,
}

// ParseTaskListQuery translates raw query parameters into a
// TaskListQuery. Every key outside the reserved window-control set
// becomes a filter predicate; an optional [op] suffix selects the
// comparison operator. Unknown fields or operators fail with
// ErrInvalidQuery so callers can answer 400 rather than 500.
func ParseTaskListQuery(params map[string]string) (TaskListQuery, error) {
	query := TaskListQuery{Page: 1, Limit: taskListDefaultLimit}

	if raw, ok := params["page"]; ok && strings.TrimSpace(raw) != "" {
		page, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return TaskListQuery{}, fmt.Errorf("%w: page must be an integer", ErrInvalidQuery)
		}
		if page > 1 {
			query.Page = page
		}
	}

	if raw, ok := params["limit"]; ok && strings.TrimSpace(raw) != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return TaskListQuery{}, fmt.Errorf("%w: limit must be an integer", ErrInvalidQuery)
		}
		switch {
		case limit < 1:
			query.Limit = 1
		case limit > taskListMaxLimit:
			query.Limit = taskListMaxLimit
		default:
			query.Limit = limit
		}
	}

	if raw, ok := params["sort"]; ok && strings.TrimSpace(raw) != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			desc := strings.HasPrefix(part, "-")
			field := strings.TrimPrefix(part, "-")
			if _, ok := taskFilterableColumns[field]; !ok {
				return TaskListQuery{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, field)
			}
			query.Sort = append(query.Sort, SortField{Field: field, Desc: desc})
		}
	}

	if raw, ok := params["fields"]; ok && strings.TrimSpace(raw) != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := taskSelectableColumns[part]; !ok {
				return TaskListQuery{}, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, part)
			}
			query.Fields = append(query.Fields, part)
		}
	}

	// Deterministic filter order keeps generated SQL stable for tests
	// and query-plan caching.
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, reserved := taskReservedParams[key]; reserved {
			continue
		}

		field := key
		op := FilterOpEq
		if open := strings.Index(key, "["); open >= 0 {
			if !strings.HasSuffix(key, "]") {
				return TaskListQuery{}, fmt.Errorf("%w: malformed operator in %q", ErrInvalidQuery, key)
			}
			field = key[:open]
			name := key[open+1 : len(key)-1]
			parsed, ok := filterOps[name]
			if !ok {
				return TaskListQuery{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, name)
			}
			op = parsed
		}

		if _, ok := taskFilterableColumns[field]; !ok {
			return TaskListQuery{}, fmt.Errorf("%w: cannot filter by %q", ErrInvalidQuery, field)
		}

		value := params[key]
		values := []string{value}
		if op == FilterOpIn {
			values = values[:0]
			for _, part := range strings.Split(value, ",") {
				part = strings.TrimSpace(part)
				if part != "" {
					values = append(values, part)
				}
			}
			if len(values) == 0 {
				return TaskListQuery{}, fmt.Errorf("%w: empty value list for %q", ErrInvalidQuery, field)
			}
		}

		query.Filters = append(query.Filters, TaskFilter{Field: field, Op: op, Values: values})
	}

	return query, nil
}

// TaskRepository exposes persistence operations for tasks.
type TaskRepository interface {
	List(ctx context.Context, query TaskListQuery) ([]models.Task, int64, error)
	GetByID(ctx context.Context, id uint, fields []string) (models.Task, error)
	GetByTitleFold(ctx context.Context, title string) (models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	DeleteWithSubmissions(ctx context.Context, id uint) (int64, error)
}

// NewTaskRepository constructs a task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

type taskRepository struct {
	db *gorm.DB
}

func (r *taskRepository) List(ctx context.Context, query TaskListQuery) ([]models.Task, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Task{})
	db = applyTaskFilters(db, query.Filters)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if len(query.Sort) == 0 {
		db = db.Order("created_at DESC")
	} else {
		for _, field := range query.Sort {
			column := taskFilterableColumns[field.Field]
			if field.Desc {
				column += " DESC"
			}
			db = db.Order(column)
		}
	}

	if columns := selectedTaskColumns(query.Fields); columns != nil {
		db = db.Select(columns)
	}

	if query.Offset() > 0 {
		db = db.Offset(query.Offset())
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var tasks []models.Task
	if err := db.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uint, fields []string) (models.Task, error) {
	db := r.db.WithContext(ctx)
	if columns := selectedTaskColumns(fields); columns != nil {
		db = db.Select(columns)
	}

	var task models.Task
	if err := db.First(&task, id).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *taskRepository) GetByTitleFold(ctx context.Context, title string) (models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("title_lower = ?", strings.ToLower(strings.TrimSpace(title))).
		First(&task).Error
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// DeleteWithSubmissions removes the task and every submission that
// references it inside one transaction. Submissions go first; deleting
// the task first would orphan them if the second statement failed.
func (r *taskRepository) DeleteWithSubmissions(ctx context.Context, id uint) (int64, error) {
	var removed int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("task_id = ?", id).Delete(&models.Submission{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected

		result = tx.Delete(&models.Task{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

func applyTaskFilters(db *gorm.DB, filters []TaskFilter) *gorm.DB {
	for _, filter := range filters {
		column := taskFilterableColumns[filter.Field]
		switch filter.Op {
		case FilterOpGte:
			db = db.Where(column+" >= ?", filter.Values[0])
		case FilterOpGt:
			db = db.Where(column+" > ?", filter.Values[0])
		case FilterOpLte:
			db = db.Where(column+" <= ?", filter.Values[0])
		case FilterOpLt:
			db = db.Where(column+" < ?", filter.Values[0])
		case FilterOpIn:
			db = db.Where(column+" IN ?", filter.Values)
		default:
			db = db.Where(column+" = ?", filter.Values[0])
		}
	}
	return db
}

// selectedTaskColumns maps requested fields to columns, always keeping
// the primary key and timestamps so responses stay well-formed.
func selectedTaskColumns(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}

	seen := map[string]struct{}{"id": {}, "created_at": {}, "updated_at": {}}
	columns := []string{"id", "created_at", "updated_at"}
	for _, field := range fields {
		column, ok := taskSelectableColumns[field]
		if !ok {
			continue
		}
		if _, dup := seen[column]; dup {
			continue
		}
		seen[column] = struct{}{}
		columns = append(columns, column)
	}
	return columns
}
