// Package viz renders run summaries, stage tables and output plots for the
// terminal.
//
// Styles follow the current [Theme]; five themes are built in. Plots are
// drawn with asciigraph.
package viz
