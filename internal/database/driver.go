package database

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"hoard-go/internal/hoard"
)

// driverName is the go-sqlite3 driver with the catalog's SQL functions
// registered on every connection.
const driverName = "sqlite3_hoard"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{ConnectHook: registerFunctions})
}

func registerFunctions(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		// X REGEXP Y calls regexp(Y, X).
		{"regexp", regexpMatch},
		{"relative_depth", relativeDepth},
		{"basename", basename},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("registering %s: %w", f.name, err)
		}
	}
	return nil
}

var regexCache = struct {
	sync.Mutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

func regexpMatch(pattern, s string) (bool, error) {
	regexCache.Lock()
	re, ok := regexCache.m[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			regexCache.Unlock()
			return false, err
		}
		regexCache.m[pattern] = re
	}
	regexCache.Unlock()
	return re.MatchString(s), nil
}

// relativeDepth returns how many components path lies below root: a direct
// child has depth 1. It returns -1 when path is not strictly below root.
func relativeDepth(root, path string) int64 {
	prefix := hoard.DirPrefix(root)
	if len(path) <= len(prefix) || !strings.HasPrefix(path, prefix) {
		return -1
	}
	return int64(strings.Count(path[len(prefix):], "/") + 1)
}

func basename(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}
