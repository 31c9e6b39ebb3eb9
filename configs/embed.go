// Package configs embeds the configuration template shipped with the
// binary so `localagent init` can write a commented starting point
// regardless of how the binary was installed.
package configs

import _ "embed"

// ConfigTemplate is the commented process-configuration template
// written by `localagent init`.
//
//go:embed config.example.yaml
var ConfigTemplate string
