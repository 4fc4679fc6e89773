// Package connectors fetches the raw bytes behind source descriptors.
// Each sub-package knows one kind of location (local files, web pages);
// Router picks between them by URL scheme.
package connectors
