// Package configs embeds the annotated configuration template written by
// `ragingest config init`.
//
// The template must decode cleanly into config.Config with unknown keys
// rejected; config_test in cmd/ragingest/cmd loads it to keep the two in
// step.
package configs

import _ "embed"

// Template is the annotated ragingest.yaml.
//
//go:embed ragingest.example.yaml
var Template string
