package probe

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/letsencrypt/ct-lite/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latestResults holds the most recent result of each target's probe.
type latestResults struct {
	mu      sync.RWMutex
	results map[string]*storage.ProbeResult
}

func newLatestResults() *latestResults {
	return &latestResults{results: make(map[string]*storage.ProbeResult)}
}

func (l *latestResults) set(r *storage.ProbeResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[r.Addr] = r
}

func (l *latestResults) get(addr string) (*storage.ProbeResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.results[addr]
	if !ok {
		return nil, storage.ErrNoResults
	}
	return r, nil
}

// latestResultHandler serves the latest result for the target named by the
// addr query parameter. Results come from db when one is configured and from
// memory otherwise.
func latestResultHandler(latest *latestResults, db storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Query("addr")
		if addr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "addr query parameter is required"})
			return
		}

		var result *storage.ProbeResult
		var err error
		if db != nil {
			result, err = db.GetLatest(addr)
		} else {
			result, err = latest.get(addr)
		}
		if errors.Is(err, storage.ErrNoResults) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results for " + addr})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// newRouter returns the HTTP handler for the prober's metrics address:
// prometheus metrics on /metrics and the latest probe results on
// /results/latest.
func newRouter(latest *latestResults, db storage.Storage) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/results/latest", latestResultHandler(latest, db))
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}
