// Package html provides a Normaliser for web pages. It isolates the main
// content of a page with goquery, dropping navigation, cookie bars and
// footers, and converts what remains to markdown so headings, lists and
// tables keep their shape in the chunks.
package html
