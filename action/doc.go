// Package action parses tool invocations emitted by the model and
// formats the observations fed back to it.
package action
