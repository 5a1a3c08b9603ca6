package pagination

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type Response struct {
	Data       interface{} `json:"data"`
	Pagination Meta        `json:"pagination"`
}

func params(c *fiber.Ctx) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit"))
	switch {
	case limit > MaxLimit:
		limit = MaxLimit
	case limit <= 0:
		limit = DefaultLimit
	}
	return page, limit
}

// Scope applies offset/limit from the "page"/"limit" query params.
func Scope(c *fiber.Ctx) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		page, limit := params(c)
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

// Wrap builds the standard paginated envelope around data.
func Wrap(c *fiber.Ctx, data interface{}, total int64) Response {
	page, limit := params(c)
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Response{
		Data: data,
		Pagination: Meta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}
