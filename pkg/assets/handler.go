package assets

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Handler serves stored assets. The returned handler expects the asset name
// as the request path (mount it behind http.StripPrefix) and rejects
// anything that is not a bare file name.
func (s *Store) Handler(cacheSeconds int) http.Handler {
	if cacheSeconds <= 0 {
		cacheSeconds = 600
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || name != filepath.Base(name) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", cacheSeconds))
		http.ServeFile(w, r, filepath.Join(s.dir, name))
	})
}
