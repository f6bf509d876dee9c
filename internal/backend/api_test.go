package backend

import (
	"archive/tar"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func tarEntryNames(t *testing.T, r io.Reader) []string {
	t.Helper()

	var names []string
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}
