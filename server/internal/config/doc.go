// Package config loads the dashboard configuration from config.yaml.
//
// Sections:
//   - dashboard  metrics document source, refresh interval (default 300000ms),
//     fetch timeout, outgoing auth/TLS, optional exposition overlay endpoint
//   - server     HTTP port (default 8080), broadcast interval, API key auth
//   - storage    in-memory history TTL, optional sqlite persistence
//   - alerts     threshold rules and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change.
package config
