// Package config loads the server's deployment configuration from a YAML
// file and turns it into the runtime configs the packages under pkg/
// consume. Programmatic embedders use server.Config directly; this package
// exists for operators running the standalone binary.
package config
