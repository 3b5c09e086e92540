package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"price_tracker/internal/model"
)

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")

// dump writes res under DumpDir/<source>/<query>-<unix>.json. Failures are
// only logged; dumping never affects the merge.
func (e *Engine) dump(sourceName string, q model.TrackedQuery, res *model.FetchResult) {
	if e.opts.DumpDir == "" {
		return
	}

	dir := filepath.Join(e.opts.DumpDir, unsafeName.Replace(sourceName))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		e.log.Warn("create dump directory", "path", dir, "error", err)
		return
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		e.log.Warn("encode fetch result", "source", sourceName, "error", err)
		return
	}

	name := fmt.Sprintf("%s-%d.json", unsafeName.Replace(q.Text), res.FetchedAt.UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		e.log.Warn("write fetch dump", "path", path, "error", err)
	}
}
