package storage

import "fmt"

const DefaultStoreKind = "memory"

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
