// Package detector provides the object-detection collaborators the pipeline
// calls for each eligible frame.
//
// Client posts JPEG-encoded frames to an HTTP inference service and decodes
// its detection list, retrying throttled and server-side failures with
// exponential backoff. FileClassifier replays detections recorded ahead of
// time, which keeps comparisons reproducible without a running model.
package detector
