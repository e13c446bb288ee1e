package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/db"
)

const (
	HeaderQueryCount = "X-Query-Count"
	HeaderTotalTime  = "X-Total-Time"
)

// QueryCount attaches a query counter to the request context and reports the
// number of SQL statements and the elapsed time as response headers.
func QueryCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, counter := db.WithQueryCounter(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Writer = &statsWriter{
			ResponseWriter: c.Writer,
			counter:        counter,
			start:          time.Now(),
		}
		c.Next()
	}
}

// statsWriter stamps the headers right before the status line is written,
// which is the last moment headers can still change.
type statsWriter struct {
	gin.ResponseWriter
	counter *db.QueryCounter
	start   time.Time
	stamped bool
}

func (w *statsWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	h := w.ResponseWriter.Header()
	h.Set(HeaderQueryCount, fmt.Sprintf("%d", w.counter.Count()))
	h.Set(HeaderTotalTime, fmt.Sprintf("%.2fs", time.Since(w.start).Seconds()))
}

func (w *statsWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *statsWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *statsWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *statsWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}
