package config

import (
	"errors"
	"fmt"
	"slices"

	"trapcat/internal/findings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if c.Metadata.FilenameColumn == "" {
		return errors.New("metadata.filename_column must be set")
	}
	if len([]rune(c.Metadata.Delimiter)) > 1 {
		return fmt.Errorf("metadata.delimiter must be a single character (got %q)", c.Metadata.Delimiter)
	}
	switch c.DelimiterRune() {
	case '"', '\r', '\n':
		return fmt.Errorf("metadata.delimiter %q is not a valid separator", c.Metadata.Delimiter)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if err := ensurePositiveMap(map[string]int{
		"ingest.check_timeout_seconds":  c.Ingest.CheckTimeoutSeconds,
		"ingest.decode_timeout_seconds": c.Ingest.DecodeTimeoutSeconds,
	}); err != nil {
		return err
	}
	for _, value := range c.Ingest.AbortOn {
		if _, ok := findings.ParseKind(value); !ok {
			return fmt.Errorf("ingest.abort_on: unknown finding kind %q", value)
		}
	}
	return nil
}

func (c *Config) validateDataset() error {
	if c.Dataset.Version < 0 {
		return errors.New("dataset.version must be >= 0")
	}
	if c.Dataset.Year < 0 {
		return errors.New("dataset.year must be >= 0")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !slices.Contains([]string{StorageSQLite, StorageJSON, StorageMemory}, c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be one of sqlite, json, memory (got %q)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// AbortKinds returns the parsed ingest.abort_on kinds.
func (c *Config) AbortKinds() []findings.Kind {
	kinds := make([]findings.Kind, 0, len(c.Ingest.AbortOn))
	for _, value := range c.Ingest.AbortOn {
		if kind, ok := findings.ParseKind(value); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
