// Package sdr demodulates upper sideband audio from an RTL2832 dongle.
// librtlsdr is only linked when built with the rtlsdr tag; otherwise Open
// reports that support is missing.
package sdr
