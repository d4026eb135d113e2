// Package baglog records data-store keys into a bolt-backed bag file for
// offline analysis. Non-RT side only.
package baglog
