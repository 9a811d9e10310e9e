// Package imaging holds the raster helpers shared by the scanner and the MCP
// server: loading captures from a path or base64 text, cropping, annotation
// drawing, color handling and size-bounded JPEG encoding.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive and Max is exclusive
//
// Drawing helpers clip to the destination bounds, so shapes that cross the
// frame edge are drawn partially rather than rejected.
//
// # Colors
//
// Annotation colors come from a Palette built from "#RRGGBB" configuration
// strings. Blending is done in CIE L*a*b* space through go-colorful.
//
// # Encoding
//
// Encoder produces base64 JPEG payloads. When a size cap is set and an image
// does not fit, it retries at reduced resolution and reports ErrExhausted
// once the minimum scale is reached.
//
// # Thread Safety
//
// Every function is stateless. Drawing mutates only the destination passed in,
// which callers own for the duration of one request.
package imaging
