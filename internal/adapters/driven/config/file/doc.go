// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML configuration in ~/.townhall/config.toml
//   - PromptStore: user-editable prompt texts in ~/.townhall/prompts/
//   - LoadManifest: TOML lists of documents to ingest
package file
