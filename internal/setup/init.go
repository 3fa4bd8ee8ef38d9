// Package setup initialises a cmdrelay data directory.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/cmdrelay/internal/atomicfile"
	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/store"
	"github.com/msageha/cmdrelay/templates"
)

// Run creates dataDir with a logs directory, the config at cfgPath (default
// config.yaml in dataDir) and the store that config names, holding only the
// header row. Existing files are kept.
func Run(dataDir, cfgPath string) error {
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	for _, d := range []string{absDir, filepath.Join(absDir, "logs")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if cfgPath == "" {
		cfgPath = filepath.Join(absDir, model.ConfigFileName)
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(cfgPath), err)
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		if err := writeConfigTemplate(cfgPath); err != nil {
			return err
		}
	}

	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	s := store.New(StorePath(absDir, cfg))
	if err := s.Init(); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	return nil
}

// StorePath resolves the configured store file against the data directory.
func StorePath(dataDir string, cfg model.Config) string {
	if filepath.IsAbs(cfg.Store.File) {
		return cfg.Store.File
	}
	return filepath.Join(dataDir, cfg.Store.File)
}

func writeConfigTemplate(path string) error {
	data, err := fs.ReadFile(templates.FS, model.ConfigFileName)
	if err != nil {
		return fmt.Errorf("read config template: %w", err)
	}
	return atomicfile.Write(path, data, atomicfile.WithValidate(validateYAML))
}

func validateYAML(content []byte) error {
	var cfg model.Config
	return yamlv3.Unmarshal(content, &cfg)
}
