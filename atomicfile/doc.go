/*
Package atomicfile writes files so that a reader never observes a partially
written file: data goes to a temporary file in the destination directory
which is renamed over the destination on Close.

Write and Close errors are both reported and the temporary file is removed
when anything fails.

	func saveTable(path string, data []byte) error {
		w, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// a no-op after a successful Close()
		defer w.RemoveIfNotClosed()

		_, err = w.Write(data)
		if err != nil {
			return err
		}
		return w.Close()
	}

For a single buffer use WriteFile.
*/
package atomicfile
