//go:build debug

package wire

// fault aborts on programming errors in debug builds.
func fault(msg string) {
	panic("wire: " + msg)
}
