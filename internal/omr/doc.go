// Package omr reads camera-captured bubble sheets.
//
// A scan locates the fiducial markers of a capture, checks that the four
// corner markers are present, fits a homography from every marker that also
// appears in the template and warps the capture into the canonical template
// frame. The rectified sheet is then read region by region: each bubble group
// (an ID digit column or an answer row) is binarized with Otsu's method and
// the ink inside each bubble's circle is counted against a per-context
// threshold.
//
// # Marking policy
//
// A bubble is marked when its ink count reaches the threshold. A group with
// no marked bubble resolves to Blank (-1). With several marked bubbles the
// highest count is selected, the group is flagged as a multiple mark, and an
// exact tie goes to the lowest index.
//
// An ID section whose columns do not all resolve yields an empty digit list.
// A partial ID is never returned.
//
// # Errors
//
// Every exported operation returns *Error carrying a Kind. Use errors.Is with
// the ErrXxx sentinels or KindOf to classify failures. Panics inside a scan
// are recovered and reported as InternalFailure.
//
// # Coordinates
//
// Template positions are canonical-frame pixels with (0,0) at the top-left.
// Detect reports marker centers normalized to [0,1] and rotated into the
// upright frame of the capture.
//
// # Thread Safety
//
// Templates are immutable after loading and may be shared across concurrent
// scans. A Scanner keeps no per-call state.
package omr
