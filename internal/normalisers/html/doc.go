// Package html extracts readable article text from HTML pages. It drops
// scripts, styles and page chrome, prefers the main article container, and
// keeps block boundaries as newlines so downstream splitters can use them.
package html
