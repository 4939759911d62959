package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirecl/xgbmerge/internal/config"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s := NewFsStore(afero.NewMemMapFs())

	require.NoError(t, s.Put(ctx, "Local_model/Local_model_json/XGB_train_set_2.json", []byte("b")))
	require.NoError(t, s.Put(ctx, "Local_model/Local_model_json/XGB_train_set_1.json", []byte("a")))
	require.NoError(t, s.Put(ctx, "Global_model/global_xgb_model.json", []byte("g")))

	data, err := s.Get(ctx, "Local_model/Local_model_json/XGB_train_set_1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	names, err := s.List(ctx, "Local_model/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Local_model/Local_model_json/XGB_train_set_1.json",
		"Local_model/Local_model_json/XGB_train_set_2.json",
	}, names)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewFsStore(afero.NewMemMapFs())

	require.NoError(t, s.Put(ctx, "model.json", []byte("first")))
	require.NoError(t, s.Put(ctx, "model.json", []byte("second")))

	data, err := s.Get(ctx, "model.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestLocalStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "Global_model/global_xgb_model.model", []byte{0x7b, 0x4c}))
	data, err := afero.ReadFile(afero.NewOsFs(), filepath.Join(root, "Global_model", "global_xgb_model.model"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7b, 0x4c}, data)

	names, err := s.List(ctx, "Global_model")
	require.NoError(t, err)
	assert.Equal(t, []string{"Global_model/global_xgb_model.model"}, names)
}

func TestLocalStoreRelativeRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s, err := Open(ctx, config.Default().Storage)
	require.NoError(t, err)

	name := "Local_model/Local_model_json/XGB_train_set_1.json"
	require.NoError(t, s.Put(ctx, name, []byte("{}")))
	require.NoError(t, s.Put(ctx, "Global_model/global_xgb_model.json", []byte("g")))

	onDisk, err := afero.ReadFile(afero.NewOsFs(), filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), onDisk)

	names, err := s.List(ctx, "Local_model/")
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	data, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), data)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.Storage{Backend: config.BackendLocal, Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = Open(context.Background(), config.Storage{Backend: "ftp"})
	assert.Error(t, err)
}
