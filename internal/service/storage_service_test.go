package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment_backend/internal/config"
	"assessment_backend/internal/util"
)

func TestLocalStorageUpload(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{
		Type:      util.StorageLocal,
		LocalPath: dir,
		PublicURL: "https://cdn.example.com/files/",
	}}
	svc := NewStorageService(cfg)
	require.IsType(t, &LocalStorageProvider{}, svc.Provider)

	url, err := svc.Upload(context.Background(), "exports/test-1/a.csv", strings.NewReader("a,b\n"), 4, util.MimeCSV)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/files/exports/test-1/a.csv", url)

	body, err := os.ReadFile(filepath.Join(dir, "exports", "test-1", "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))
}

func TestUnknownStorageFallsBackToLocal(t *testing.T) {
	svc := NewStorageService(&config.Config{Storage: config.StorageConfig{Type: "s3", LocalPath: t.TempDir()}})
	assert.IsType(t, &LocalStorageProvider{}, svc.Provider)
}
