// Package ffprobe runs ffprobe against a screen recording and reports the
// properties the frame extractor needs: frame rate, duration, frame count
// and resolution of the first video stream.
package ffprobe
