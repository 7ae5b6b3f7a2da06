// Package node holds the network model: schemas, groups, nodes and the
// arena that owns them.
//
// Nodes never copy each other's outputs. An internal input slot stores the
// producer's handle and output index and reads through the arena. Forward
// slots read the producer's current output, which is final once the
// producer's stage has completed. Backward slots read the lagged buffer,
// written by Arena.Commit between steps.
package node
