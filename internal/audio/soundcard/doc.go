// Package soundcard captures from portaudio input devices. Building with the
// noportaudio tag leaves portaudio out and makes Open fail.
package soundcard
