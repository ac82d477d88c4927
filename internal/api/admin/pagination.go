// pagination.go holds the page/per_page parsing shared by every list endpoint.
package admin

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// parsePagination reads ?page= and ?per_page= and returns them with the row offset.
// Out-of-range values fall back to page 1 and the default page size.
func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage, (page - 1) * perPage
}

func paginationBody(page, perPage, total int) gin.H {
	return gin.H{
		"page":     page,
		"per_page": perPage,
		"total":    total,
	}
}

// optionalQuery returns a pointer to the trimmed query value, or nil when absent.
func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}
