package psl

import (
	"bytes"
	_ "embed"
	"sync"
)

//go:embed data/public_suffix_list.dat
var defaultListData []byte

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
	defaultEngineErr  error
)

// Default returns a process-wide Engine loaded from the bundled PSL data
// file, built once and cached. Callers needing overrides or a different list
// should use NewEngine directly instead.
func Default() (*Engine, error) {
	defaultEngineOnce.Do(func() {
		defaultEngine, defaultEngineErr = NewEngine(bytes.NewReader(defaultListData))
	})
	return defaultEngine, defaultEngineErr
}
