// Package index discovers the image streams of a ZVI container.
//
// Image data lives in streams named Image/Item(<n>)/Contents. The index
// records every item number n found in a container listing; the sequence
// length derived from it is the largest item number, so gaps in the
// numbering are tolerated and only surface when a missing item is read.
package index
