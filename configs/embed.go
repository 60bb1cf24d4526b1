// Package configs holds configuration templates embedded at build time.
//
// ProjectConfigTemplate is written by `exifturbo init` as .exifturbo.yaml.
// It lists every setting with its default, so it must stay loadable by
// config.Load.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .exifturbo.yaml template.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
