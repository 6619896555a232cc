// Package imagemeta reads image dimensions and colour information.
//
// Header probing uses image.DecodeConfig so the common path never decodes
// pixel data. Decoders for JPEG, PNG and GIF come from the standard library;
// WebP, TIFF and BMP are registered from golang.org/x/image. When channel
// statistics are requested the image is fully decoded and per-channel sums
// are returned for the caller to aggregate.
package imagemeta
