package oors

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithLogger sets the logger used by the manager and handed to modules.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithValidator replaces the configuration validator, e.g. one with extra
// formats registered.
func WithValidator(v *Validator) ManagerOption {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithValue seeds a shared host value.
func WithValue(key string, value any) ManagerOption {
	return func(m *Manager) {
		m.values[key] = value
	}
}

// WithEventSource sets the CloudEvents source attribute of kernel events.
func WithEventSource(source string) ManagerOption {
	return func(m *Manager) {
		if source != "" {
			m.source = source
		}
	}
}
