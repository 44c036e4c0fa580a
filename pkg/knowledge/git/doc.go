// Package git keeps a knowledge pack in sync with a branch of a git
// repository.
//
// The repository is cloned (or an existing clone reused) at startup and the
// pack file is read from the working tree. A Watcher pulls on an interval and
// reloads the knowledge store only when a pull changed the pack file. A pack
// that fails validation after a pull is not installed; the previous pack
// stays active until a later commit fixes it.
package git
