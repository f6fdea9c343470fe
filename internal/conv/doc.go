// Package conv provides checked integer conversions for row indices.
//
// Row sets are roaring bitmaps of uint32 while datasets index rows with
// int, so every conversion between the two goes through here.
package conv
