package gormlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortCaller(t *testing.T) {
	tests := map[string]string{
		"": "",
		"/home/ci/repo/internal/platform/db/postgres.go:38": "internal/platform/db/postgres.go:38",
		"/home/ci/repo/pkg/config/config.go:12":             "pkg/config/config.go:12",
		"/go/pkg/mod/gorm.io/gorm@v1.31.1/callbacks.go:130": "pkg/mod/gorm.io/gorm@v1.31.1/callbacks.go:130",
		"/a/b/c/d.go:1": "b/c/d.go:1",
		"x.go:2":        "x.go:2",
	}
	for in, want := range tests {
		require.Equal(t, want, shortCaller(in), in)
	}
}
