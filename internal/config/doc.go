// Package config loads the butler daemon configuration from a JSON file and
// fills in defaults for every section. Connector seed definitions live in a
// separate YAML file referenced from the JSON configuration.
package config
