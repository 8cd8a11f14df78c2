package config

import "verum/internal/logging"

// LoggerConfig converts the section into logger settings for component.
func (c LoggingConfig) LoggerConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     logging.ParseFormat(c.Format),
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
		Component:  component,
	}, nil
}

// AuditConfig returns the custody log settings, or nil when auditing is
// disabled.
func (c LoggingConfig) AuditConfig(component string) *logging.AuditConfig {
	if c.AuditPath == "" {
		return nil
	}
	return &logging.AuditConfig{
		FilePath:   c.AuditPath,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
		Component:  component,
	}
}
