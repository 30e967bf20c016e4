//go:build dev

package azcli

func init() {
	devMode = true
}
