// Package vision is the boundary between the scanner and the computer-vision
// primitives it consumes.
//
// The scanner never calls an imaging library directly. It depends on the small
// interfaces in this package (Preprocessor, MarkerDetector, HomographySolver,
// Warper, Binarizer, Codec) bundled as Primitives, so engines can be swapped
// without touching extraction logic.
//
// # Backends
//
//   - Native (this package): pure Go. Homography fitting uses gonum, blur uses
//     bild, and CLAHE, Otsu and the perspective warp are implemented here. It has
//     no fiducial localizer of its own; one can be injected.
//   - opencv (subpackage, build tag "gocv"): the same operations on OpenCV via
//     gocv, including ArUco marker detection.
//
// # Coordinates
//
// Points are float64 pixel coordinates with (0,0) at the top-left corner of the
// image. A Homography maps source-image points to canonical-frame points.
//
// # Reentrancy
//
// Backends hold only immutable parameters. Every call allocates its own
// buffers, so one backend value may serve concurrent scans.
package vision
