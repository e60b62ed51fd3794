package leveldb

import (
	"fmt"
	"path/filepath"

	"github.com/flashdb/titankv/internal/store"
)

// Dir is the database directory name inside store.Config.DataDir.
const Dir = "leveldb"

func init() {
	store.Register(store.KindLevelDB, func(cfg store.Config) (store.Backend, error) {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("leveldb: data dir is required")
		}
		return Open(filepath.Join(cfg.DataDir, Dir), WithSync(cfg.SyncWrites))
	})
}
