package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// ParsePage reads page and page_size. A page that is not a positive integer
// is rejected; a bad page_size falls back to the default and large ones are
// capped.
func ParsePage(c *gin.Context) (Page, bool) {
	p := Page{Number: 1, Size: DefaultPageSize}

	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, false
		}
		p.Number = n
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Size = min(n, MaxPageSize)
		}
	}
	return p, true
}

// InRange reports whether p exists for count items. The first page always
// exists.
func (p Page) InRange(count int) bool {
	return p.Number <= lastPage(count, p.Size)
}

func lastPage(count, size int) int {
	if count == 0 {
		return 1
	}
	return (count + size - 1) / size
}

// InvalidPage writes the 404 body for an out-of-range or malformed page.
func InvalidPage(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid page."})
}

// Envelope builds the list response with absolute next/previous links.
func Envelope(c *gin.Context, p Page, count int, results any) gin.H {
	var next, prev any
	if p.Number < lastPage(count, p.Size) {
		next = pageLink(c, p.Number+1)
	}
	if p.Number > 1 {
		prev = pageLink(c, p.Number-1)
	}
	return gin.H{
		"count":    count,
		"next":     next,
		"previous": prev,
		"results":  results,
	}
}

func pageLink(c *gin.Context, n int) string {
	u := url.URL{
		Scheme: "http",
		Host:   c.Request.Host,
		Path:   c.Request.URL.Path,
	}
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		u.Scheme = "https"
	}

	q := c.Request.URL.Query()
	if n == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
