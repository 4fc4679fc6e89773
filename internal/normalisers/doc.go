// Package normalisers turns fetched bytes into plain text. Each sub-package
// handles one family of formats; the Registry in this package picks the
// normaliser for a MIME type.
//
// Normalisers are registered with the Registry at startup. A format-specific
// normaliser returns a priority of 50-89 and wins over the plain-text
// fallback, which claims the whole text/* family at priority 5.
package normalisers
