//go:build !unix

package source

func inodeKey(string) (string, bool) {
	return "", false
}
