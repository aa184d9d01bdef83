package config

import (
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"

	"github.com/NamanBalaji/tbs/internal/scan"
)

const (
	resize                  = false
	verify                  = false
	cacheEnabled            = true
	maxBoundaryCandidates   = scan.DefaultMaxBoundaryCandidates
	maxBoundaryCombinations = scan.DefaultMaxBoundaryCombinations
)

var (
	threads   = runtime.NumCPU()
	cachePath = filepath.Join(xdg.CacheHome, appName, "scan.db")
)
