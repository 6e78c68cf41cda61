// Package normalisers turns fetched web pages and files into plain text.
// The Extractor fetches a URL once and dispatches on the content type to
// the html or pdf extractor.
package normalisers
