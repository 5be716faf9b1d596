package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

// StartDebugServer exposes the raw badger rows over HTTP for inspection:
// GET /inspect?prefix=upload: returns every row under the prefix as JSON.
// Rows are stored as JSON already, so they pass through unparsed.
func StartDebugServer(db *badger.DB, port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "upload:"
		}

		rows := make(map[string]json.RawMessage)
		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					if json.Valid(val) {
						rows[string(item.Key())] = json.RawMessage(val)
					} else {
						encoded, _ := json.Marshal(string(val))
						rows[string(item.Key())] = encoded
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"prefix": prefix, "count": len(rows), "rows": rows})
	})

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		log.Info("debug server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("debug server stopped", "error", err)
		}
	}()
}
