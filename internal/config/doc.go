// Package config provides centralized configuration management for the
// merchant runtime: the JSON service configuration with typed accessors and
// defaults, plus pointers to the YAML chain definitions consumed by the web3
// layer.
package config
