// Package labels turns raw detector output into label sets.
//
// A Vocabulary names every label id the detector may emit and the error-class
// subset that marks an anomaly on its own. The Extractor filters detections by
// confidence and reports unknown labels as typed errors; whether those abort
// the run or are skipped is the caller's Policy. Display names are resolved
// per locale with golang.org/x/text so reports can be localized.
package labels
